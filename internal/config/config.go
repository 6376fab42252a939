// Package config loads flowscope settings from defaults, an optional YAML
// file, FLOWSCOPE_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// EnvPrefix is prepended to every environment variable, with "." in keys
// mapped to "_" (FLOWSCOPE_KAFKA_CLIENT_ID).
const EnvPrefix = "FLOWSCOPE"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
	Session SessionConfig `mapstructure:"session"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int   `mapstructure:"port"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

type KafkaConfig struct {
	ClientID          string        `mapstructure:"client_id"`
	GroupPrefix       string        `mapstructure:"group_prefix"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ProducerClientID  string        `mapstructure:"producer_client_id"`
}

type GraphQLConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

type SessionConfig struct {
	History int `mapstructure:"history"`
	Backlog int `mapstructure:"backlog"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("kafka.client_id", "subscriber-tool")
	v.SetDefault("kafka.group_prefix", "subscriber-tool-")
	v.SetDefault("kafka.connect_timeout", 10*time.Second)
	v.SetDefault("kafka.session_timeout", 30*time.Second)
	v.SetDefault("kafka.heartbeat_interval", 3*time.Second)
	v.SetDefault("kafka.producer_client_id", "flowscope-producer")
	v.SetDefault("graphql.handshake_timeout", 10*time.Second)
	v.SetDefault("session.history", 500)
	v.SetDefault("session.backlog", 100)
	v.SetDefault("store.path", ".flowscope-state.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// BindEnv enables FLOWSCOPE_* overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	for key, d := range map[string]time.Duration{
		"kafka.connect_timeout":     c.Kafka.ConnectTimeout,
		"kafka.session_timeout":     c.Kafka.SessionTimeout,
		"kafka.heartbeat_interval":  c.Kafka.HeartbeatInterval,
		"graphql.handshake_timeout": c.GraphQL.HandshakeTimeout,
	} {
		if d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.Kafka.HeartbeatInterval >= c.Kafka.SessionTimeout && c.Kafka.SessionTimeout > 0 {
		errs = multierr.Append(errs, errors.New("kafka.heartbeat_interval must be shorter than kafka.session_timeout"))
	}
	if c.Kafka.ClientID == "" {
		errs = multierr.Append(errs, errors.New("kafka.client_id must not be empty"))
	}
	if c.Session.History <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("session.history must be positive, got %d", c.Session.History))
	}
	if c.Session.Backlog < 0 || c.Session.Backlog > c.Session.History {
		errs = multierr.Append(errs, fmt.Errorf("session.backlog must be between 0 and session.history, got %d", c.Session.Backlog))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = multierr.Append(errs, errors.New("store.path must not be empty"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errs
}
