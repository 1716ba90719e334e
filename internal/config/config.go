// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Assets    AssetConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Events    EventsConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST, default=0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT, default=8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT, default=60s"`

	// WriteTimeout is the maximum duration for writing response (default: 10m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT, default=10m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT, default=60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT, default=30s"`

	// RequestTimeout is the middleware timeout for non-upload requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT, default=60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required).
	// DB_URL is accepted as a fallback when DATABASE_URL is unset.
	URL string `env:"DATABASE_URL"`

	// AltURL carries DB_URL; Load folds it into URL.
	AltURL string `env:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS, default=20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS, default=4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME, default=1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME, default=30m"`

	// AutoMigrate applies embedded migrations at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE, default=true"`
}

// UploadConfig holds ingestion request settings.
type UploadConfig struct {
	// MaxRequestSize caps the whole multipart body in bytes (default: 256MB)
	MaxRequestSize int64 `env:"UPLOAD_MAX_REQUEST_SIZE, default=268435456"`

	// MaxConcurrent is the maximum number of parallel ingestions (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT, default=5"`

	// MaxInFlightBytes caps the payload bytes held by running ingestions (default: 512MB)
	MaxInFlightBytes int64 `env:"UPLOAD_MAX_INFLIGHT_BYTES, default=536870912"`

	// MaxWaitTime is how long to wait for an ingestion slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME, default=30s"`

	// Timeout is the maximum duration for a single ingestion (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT, default=10m"`
}

// AssetConfig holds image validation and storage settings.
type AssetConfig struct {
	// Backend selects where assets are written: local or s3 (default: local)
	Backend string `env:"ASSET_BACKEND, default=local"`

	// Root is the local directory that holds assets/{site}/images (default: data)
	Root string `env:"ASSET_ROOT, default=data"`

	// MaxImageSize is the per-image byte cap (default: 10MB)
	MaxImageSize int64 `env:"ASSET_MAX_IMAGE_SIZE, default=10485760"`

	// MaxDimension bounds the longer image side after resizing (default: 1920)
	MaxDimension int `env:"ASSET_MAX_DIMENSION, default=1920"`

	// DecodeWorkers bounds concurrent decodes; 0 means GOMAXPROCS
	DecodeWorkers int `env:"ASSET_DECODE_WORKERS, default=0"`

	// AllowPassthrough keeps undecodable images unmodified (default: true)
	AllowPassthrough bool `env:"ASSET_ALLOW_PASSTHROUGH, default=true"`

	S3 S3Config
}

// S3Config holds object storage settings used when Backend is s3.
type S3Config struct {
	Endpoint     string `env:"S3_ENDPOINT"`
	Region       string `env:"S3_REGION, default=us-east-1"`
	Bucket       string `env:"S3_BUCKET"`
	AccessKey    string `env:"S3_ACCESS_KEY"`
	SecretKey    string `env:"S3_SECRET_KEY"`
	UsePathStyle bool   `env:"S3_USE_PATH_STYLE, default=true"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED, default=true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE, default=100"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD, default=10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// JWTSecret is the HS256 key used to verify bearer tokens (required)
	JWTSecret string `env:"JWT_SECRET"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL, default=info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT, default=text"`
}

// EventsConfig holds the optional NATS JetStream publisher settings.
// Publishing is disabled when URL is empty.
type EventsConfig struct {
	URL     string `env:"NATS_URL"`
	Subject string `env:"NATS_SUBJECT, default=catalog.replaced"`
	Stream  string `env:"NATS_STREAM, default=CATALOG"`
}

// TelemetryConfig holds tracing settings. Tracing is disabled when
// OTLPEndpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME, default=sitecatalog"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Enabled reports whether a NATS URL is configured.
func (c *EventsConfig) Enabled() bool {
	return c.URL != ""
}

// Enabled reports whether an OTLP endpoint is configured.
func (c *TelemetryConfig) Enabled() bool {
	return c.OTLPEndpoint != ""
}
