package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atikulmunna/flowscope/internal/aggregator"
	"github.com/atikulmunna/flowscope/internal/config"
	"github.com/atikulmunna/flowscope/internal/hub"
	"github.com/atikulmunna/flowscope/internal/ingest"
	"github.com/atikulmunna/flowscope/internal/normalize"
	"github.com/atikulmunna/flowscope/internal/server"
	"github.com/atikulmunna/flowscope/internal/session"
	"github.com/atikulmunna/flowscope/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for live Kafka and GraphQL sessions",
	Long: `Start the HTTP API. Clients connect Kafka consumers or GraphQL
subscriptions, then read normalized messages over server-sent events or a
WebSocket, or query them grouped into flows.

Examples:
  flowscope serve
  flowscope serve --port 9090 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP port")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}

	n := normalize.New(nil)
	var registry *session.Registry
	agg := aggregator.New(
		func() int64 { return registry.Dropped() },
		func() int { return registry.Len() },
	)
	registry = session.NewRegistry(n, hub.Options{
		History:  cfg.Session.History,
		Backlog:  cfg.Session.Backlog,
		Logger:   logger.Named("hub"),
		Observer: agg.Observe,
	}, logger.Named("session"))

	srv := server.New(server.Options{
		Registry:   registry,
		Aggregator: agg,
		Normalizer: n,
		Store:      st,
		Producer:   ingest.NewProducer(cfg.Kafka.ProducerClientID, logger.Named("producer")),
		OpenKafka:  kafkaOpener(cfg.Kafka, logger.Named("kafka")),
		OpenGQL:    graphQLOpener(cfg.GraphQL, logger.Named("graphql")),
		Logger:     logger.Named("http"),

		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		agg.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx, fmt.Sprintf(":%d", cfg.Server.Port))
	})
	err = g.Wait()
	logger.Info("flowscope stopped")
	return err
}

func kafkaOpener(cfg config.KafkaConfig, logger *zap.Logger) server.KafkaOpener {
	return func(brokers, topics []string, consumerID string) (ingest.Source, error) {
		return ingest.NewKafkaSource(ingest.KafkaConfig{
			Brokers:           brokers,
			Topics:            topics,
			GroupID:           cfg.GroupPrefix + consumerID,
			ClientID:          cfg.ClientID,
			ConnectTimeout:    cfg.ConnectTimeout,
			SessionTimeout:    cfg.SessionTimeout,
			HeartbeatInterval: cfg.HeartbeatInterval,
		}, logger)
	}
}

func graphQLOpener(cfg config.GraphQLConfig, logger *zap.Logger) server.GraphQLOpener {
	return func(endpoint, query string, variables json.RawMessage) (ingest.Source, error) {
		return ingest.NewGraphQLSource(ingest.GraphQLConfig{
			Endpoint:         endpoint,
			Query:            query,
			Variables:        variables,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}, logger)
	}
}
