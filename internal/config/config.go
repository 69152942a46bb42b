// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Notification backends accepted by NOTIFY_BACKEND.
const (
	NotifyNone  = "none"
	NotifyKafka = "kafka"
	NotifyRedis = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty runs on the in-memory repository.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// NotifyBackend selects the session update publisher: kafka, redis or none.
	NotifyBackend string `mapstructure:"NOTIFY_BACKEND"`
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the topic session updates are written to and the worker reads from.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the notification worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// RedisURL is a redis:// URL used when NotifyBackend is redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// Worker-only: Loki URL the notification worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// BridgeURL is the base URL of the protocol sidecar (e.g. http://localhost:7070).
	BridgeURL string `mapstructure:"WA_BRIDGE_URL"`

	// Lifecycle tunables. Durations use time.ParseDuration syntax.
	ReconnectBase      string `mapstructure:"RECONNECT_BASE"`
	ReconnectCap       string `mapstructure:"RECONNECT_CAP"`
	ReconnectJitter    string `mapstructure:"RECONNECT_JITTER"`
	ReconnectCooldown  string `mapstructure:"RECONNECT_COOLDOWN"`
	LeaseStaleAfter    string `mapstructure:"LEASE_STALE_AFTER"`
	QRMaxRetries       int    `mapstructure:"QR_MAX_RETRIES"`
	StartupConcurrency int    `mapstructure:"STARTUP_CONCURRENCY"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "whatsapp-control-plane")
	v.SetDefault("NOTIFY_BACKEND", NotifyNone)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "whatsapp-sessions")
	v.SetDefault("KAFKA_GROUP_ID", "whatsapp-notify-worker")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("WA_BRIDGE_URL", "")
	v.SetDefault("RECONNECT_BASE", "1.2s")
	v.SetDefault("RECONNECT_CAP", "15s")
	v.SetDefault("RECONNECT_JITTER", "800ms")
	v.SetDefault("RECONNECT_COOLDOWN", "2s")
	v.SetDefault("LEASE_STALE_AFTER", "20s")
	v.SetDefault("QR_MAX_RETRIES", 3)
	v.SetDefault("STARTUP_CONCURRENCY", 4)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.NotifyBackend = strings.ToLower(strings.TrimSpace(cfg.NotifyBackend))
	switch cfg.NotifyBackend {
	case "", NotifyNone:
		cfg.NotifyBackend = NotifyNone
	case NotifyKafka:
		if len(cfg.KafkaBrokersList()) == 0 {
			return nil, errors.New("config: KAFKA_BROKERS must be set when NOTIFY_BACKEND=kafka")
		}
	case NotifyRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REDIS_URL must be set when NOTIFY_BACKEND=redis")
		}
	default:
		return nil, errors.New("config: NOTIFY_BACKEND must be one of kafka, redis, none")
	}

	if cfg.QRMaxRetries < 0 {
		return nil, errors.New("config: QR_MAX_RETRIES must not be negative")
	}
	if cfg.StartupConcurrency < 0 {
		return nil, errors.New("config: STARTUP_CONCURRENCY must not be negative")
	}

	return &cfg, nil
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c != nil && strings.EqualFold(c.Env, "development")
}

// ReconnectBaseDelay parses ReconnectBase. Returns 1.2s if unset or invalid.
func (c *Config) ReconnectBaseDelay() time.Duration {
	return parsePositive(c.ReconnectBase, 1200*time.Millisecond)
}

// ReconnectCapDelay parses ReconnectCap. Returns 15s if unset or invalid.
func (c *Config) ReconnectCapDelay() time.Duration {
	return parsePositive(c.ReconnectCap, 15*time.Second)
}

// ReconnectJitterMax parses ReconnectJitter. "0" disables jitter; invalid input returns 800ms.
func (c *Config) ReconnectJitterMax() time.Duration {
	return parseDisable(c.ReconnectJitter, 800*time.Millisecond)
}

// ReconnectCooldownPeriod parses ReconnectCooldown. "0" disables the cooldown; invalid input returns 2s.
func (c *Config) ReconnectCooldownPeriod() time.Duration {
	return parseDisable(c.ReconnectCooldown, 2*time.Second)
}

// LeaseStaleAfterDuration parses LeaseStaleAfter. Returns 20s if unset or invalid.
func (c *Config) LeaseStaleAfterDuration() time.Duration {
	return parsePositive(c.LeaseStaleAfter, 20*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parsePositive(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// parseDisable maps an explicit zero to -1, which the reconnect scheduler reads as disabled.
func parseDisable(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	switch {
	case err != nil || d < 0:
		return def
	case d == 0:
		return -1
	}
	return d
}
