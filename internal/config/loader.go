package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Load reads configuration from the process environment, applies defaults
// for unset values, and validates the result.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit source of variables.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg, err := Parse(ctx, l)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Parse populates a Config from l without validating it. The CLI uses this
// directly because it does not need a database URL or token secret when
// running against SQLite.
func Parse(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = cfg.Database.AltURL
	}
	cfg.Database.AltURL = ""

	cfg.Security.TrustedProxies = compact(cfg.Security.TrustedProxies)
	cfg.Security.AllowedOrigins = compact(cfg.Security.AllowedOrigins)
	cfg.Assets.Backend = strings.ToLower(strings.TrimSpace(cfg.Assets.Backend))

	return &cfg, nil
}

// compact drops empty entries left by trailing commas.
func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Upload validation
	if c.Upload.MaxRequestSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_REQUEST_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxInFlightBytes <= 0 {
		errs = append(errs, "UPLOAD_MAX_INFLIGHT_BYTES must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}

	errs = append(errs, c.Assets.validate()...)

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.UploadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 bytes")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if c.Events.Enabled() && c.Events.Subject == "" {
		errs = append(errs, "NATS_SUBJECT is required when NATS_URL is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ValidateAssets checks only the asset settings. The CLI calls this in place
// of Validate.
func (c *Config) ValidateAssets() error {
	if errs := c.Assets.validate(); len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (a *AssetConfig) validate() []string {
	var errs []string

	switch a.Backend {
	case "local":
		if a.Root == "" {
			errs = append(errs, "ASSET_ROOT is required when ASSET_BACKEND is local")
		}
	case "s3":
		if a.S3.Bucket == "" {
			errs = append(errs, "S3_BUCKET is required when ASSET_BACKEND is s3")
		}
	default:
		errs = append(errs, fmt.Sprintf("ASSET_BACKEND (%q) must be one of: local, s3", a.Backend))
	}
	if a.MaxImageSize <= 0 {
		errs = append(errs, "ASSET_MAX_IMAGE_SIZE must be positive")
	}
	if a.MaxDimension <= 0 {
		errs = append(errs, "ASSET_MAX_DIMENSION must be positive")
	}
	if a.DecodeWorkers < 0 {
		errs = append(errs, "ASSET_DECODE_WORKERS must be non-negative")
	}

	return errs
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Upload: {MaxRequestSize: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Upload.MaxRequestSize, c.Upload.MaxConcurrent, c.Upload.Timeout))
	b.WriteString(fmt.Sprintf("Assets: {Backend: %q, MaxImageSize: %d, MaxDimension: %d}, ",
		c.Assets.Backend, c.Assets.MaxImageSize, c.Assets.MaxDimension))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString("Security: {JWTSecret: [MASKED]}, ")
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
