package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/aggregator"
	"github.com/atikulmunna/flowscope/internal/flow"
	"github.com/atikulmunna/flowscope/internal/ingest"
	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/normalize"
	"github.com/atikulmunna/flowscope/internal/session"
	"github.com/atikulmunna/flowscope/internal/store"
)

const (
	disposeTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// KafkaOpener connects a consumer for one Kafka session.
type KafkaOpener func(brokers, topics []string, consumerID string) (ingest.Source, error)

// GraphQLOpener prepares a subscription source.
type GraphQLOpener func(endpoint, query string, variables json.RawMessage) (ingest.Source, error)

// Options carries the server's dependencies. Registry, Aggregator and
// Normalizer are required.
type Options struct {
	Registry   *session.Registry
	Aggregator *aggregator.Aggregator
	Normalizer *normalize.Normalizer
	Store      *store.Store // optional; persistence is skipped when nil
	Producer   *ingest.Producer
	OpenKafka  KafkaOpener
	OpenGQL    GraphQLOpener
	Logger     *zap.Logger

	MaxUploadBytes int64 // defaults to DefaultMaxUploadBytes
}

// Server holds the Gin engine and dependencies for the HTTP API.
type Server struct {
	engine *gin.Engine
	opts   Options
	logger *zap.Logger
}

// New creates the HTTP API server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine: engine,
		opts:   opts,
		logger: opts.Logger,
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.opts.Aggregator.Snapshot())
	})

	api := s.engine.Group("/api")
	api.POST("/kafka/connect", s.handleKafkaConnect)
	api.DELETE("/kafka/connect", s.handleKafkaDisconnect)
	api.GET("/kafka/messages", s.handleKafkaMessages)
	api.POST("/kafka/produce", s.handleKafkaProduce)
	api.GET("/kafka/session", s.handleLastSession)

	api.POST("/graphql/subscribe", s.handleGraphQLSubscribe)
	api.DELETE("/graphql/subscribe", s.handleGraphQLUnsubscribe)

	api.GET("/sessions", s.handleSessions)
	api.GET("/sessions/:id/flows", s.handleSessionFlows)

	api.POST("/json/upload", s.handleUpload)
	api.GET("/json/last", s.handleLastDocument)
	api.DELETE("/json/last", s.handleClearDocument)

	s.engine.GET("/ws", s.handleWebSocket)

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// and disposes every session.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.opts.Registry.DisposeAll(shutdownCtx); err != nil {
		s.logger.Warn("disposing sessions on shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.opts.Aggregator.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"uptime":           stats.Uptime,
		"sessions":         stats.ActiveSessions,
		"eps":              stats.EPS,
		"dropped_messages": stats.DroppedMessages,
	})
}

// flowView is the response shape shared by every endpoint that returns
// grouped messages.
type flowView struct {
	Groups     []model.FlowGroup `json:"groups"`
	Total      int               `json:"total"`
	Shown      int               `json:"shown"`
	Containers []string          `json:"containers"`
	Levels     []string          `json:"levels"`
}

// buildView filters and groups msgs using the request's filterType,
// filter, q and order query parameters.
func buildView(c *gin.Context, msgs []model.ParsedMessage) (flowView, error) {
	kind, ok := flow.ParseFilterKind(c.Query("filterType"))
	if !ok {
		return flowView{}, errors.New("filterType must be none, container or level")
	}
	filtered := flow.Filter(msgs, flow.Criteria{
		Kind:  kind,
		Value: c.Query("filter"),
		Query: c.Query("q"),
	})
	groups := flow.Group(filtered, flow.ParseOrder(c.Query("order")))
	if groups == nil {
		groups = []model.FlowGroup{}
	}
	return flowView{
		Groups:     groups,
		Total:      len(msgs),
		Shown:      len(filtered),
		Containers: flow.Containers(msgs),
		Levels:     flow.Levels(msgs),
	}, nil
}

func errorJSON(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
