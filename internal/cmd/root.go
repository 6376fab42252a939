package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/config"
	"github.com/atikulmunna/flowscope/internal/flow"
	"github.com/atikulmunna/flowscope/internal/logging"
)

var (
	cfgFile     string
	outputFmt   string
	filterType  string
	filterValue string
	searchQuery string
	ascending   bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "flowscope",
	Short: "flowscope: follow message flows across Kafka, GraphQL and Splunk exports",
	Long: `flowscope correlates related messages into flows using a flow identifier
found in headers, JSON payloads, log text or message keys.

It reads Splunk JSON/NDJSON exports, tails growing NDJSON logs, and serves an
HTTP API that listens to Kafka topics or GraphQL subscriptions in real time.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.flowscope.yaml or ./.flowscope.yaml)")
	flags.StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	flags.StringVar(&filterType, "filter-type", "none", "attribute --filter applies to: none, container, level")
	flags.StringVar(&filterValue, "filter", "", "exact container name or level to keep")
	flags.StringVarP(&searchQuery, "search", "q", "", "case-insensitive text to search for in messages")
	flags.BoolVar(&ascending, "asc", false, "order messages inside a flow oldest first")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".flowscope")
		viper.SetConfigType("yaml")
	}

	config.BindEnv(viper.GetViper())
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("read config: %w", err))
		}
	}
}

// setup loads the validated configuration and builds the logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// criteria turns the global filter flags into flow criteria.
func criteria() (flow.Criteria, flow.Order, error) {
	kind, ok := flow.ParseFilterKind(filterType)
	if !ok {
		return flow.Criteria{}, 0, fmt.Errorf("invalid --filter-type %q (want none, container or level)", filterType)
	}
	order := flow.Descending
	if ascending {
		order = flow.Ascending
	}
	return flow.Criteria{Kind: kind, Value: filterValue, Query: searchQuery}, order, nil
}
