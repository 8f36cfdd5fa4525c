// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-process store (development and tests only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only the seed command signs tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file used to verify session tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the expected iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the lifetime of tokens minted by the seed command (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// InvitationTTL is how long an issued invitation stays redeemable (e.g. "168h").
	InvitationTTL string `mapstructure:"INVITATION_TTL"`
	// InvitationTokenSecret keys the invitation token digest. Required in production.
	InvitationTokenSecret string `mapstructure:"INVITATION_TOKEN_SECRET"`
	// HideTenantExistence when true reports NotAMember and InsufficientRole as not found.
	HideTenantExistence bool `mapstructure:"HIDE_TENANT_EXISTENCE"`

	// DSOCacheTTL bounds how long a DSO to org resolution is reused (e.g. "5m"). Zero disables the cache.
	DSOCacheTTL string `mapstructure:"DSO_CACHE_TTL"`
	// DSOCacheMaxItems caps the number of cached DSO resolutions.
	DSOCacheMaxItems int64 `mapstructure:"DSO_CACHE_MAX_ITEMS"`

	// PolicyFile is an optional path to a Rego module replacing the built-in operation policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables the Kafka event publisher.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the topic domain events are published to.
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the events worker pushes consumed events (worker only).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTelEndpoint is the OTLP gRPC collector address. Empty disables exporters.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure disables TLS to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "dsodesk-auth")
	v.SetDefault("JWT_AUDIENCE", "dsodesk-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("INVITATION_TTL", "168h") // 7d
	v.SetDefault("INVITATION_TOKEN_SECRET", "")
	v.SetDefault("HIDE_TENANT_EXISTENCE", false)
	v.SetDefault("DSO_CACHE_TTL", "5m")
	v.SetDefault("DSO_CACHE_MAX_ITEMS", 10000)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "dsodesk-events")
	v.SetDefault("KAFKA_GROUP_ID", "dsodesk-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.IsProduction() {
		if cfg.JWTPublicKey == "" {
			return nil, errors.New("config: JWT_PUBLIC_KEY must be set when APP_ENV=production")
		}
		if cfg.InvitationTokenSecret == "" {
			return nil, errors.New("config: INVITATION_TOKEN_SECRET must be set when APP_ENV=production")
		}
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when APP_ENV=production")
		}
	}
	if cfg.DSOCacheMaxItems < 0 {
		return nil, errors.New("config: DSO_CACHE_MAX_ITEMS must not be negative")
	}
	if _, err := time.ParseDuration(cfg.InvitationTTL); err != nil {
		return nil, errors.New("config: INVITATION_TTL must be a duration (e.g. 168h)")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// InvitationLifetime parses InvitationTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) InvitationLifetime() time.Duration {
	d, err := time.ParseDuration(c.InvitationTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// DSOCacheLifetime parses DSOCacheTTL. Zero (or an invalid value) disables caching.
func (c *Config) DSOCacheLifetime() time.Duration {
	d, err := time.ParseDuration(c.DSOCacheTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka publisher is enabled (non-empty list) and to create it.
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
