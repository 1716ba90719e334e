package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/sitecatalog/internal/assetstore"
	"github.com/JonMunkholm/sitecatalog/internal/config"
	"github.com/JonMunkholm/sitecatalog/internal/core"
	"github.com/JonMunkholm/sitecatalog/internal/events"
	"github.com/JonMunkholm/sitecatalog/internal/logging"
	"github.com/JonMunkholm/sitecatalog/internal/store/postgres"
	"github.com/JonMunkholm/sitecatalog/internal/telemetry"
	"github.com/JonMunkholm/sitecatalog/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	ctx := context.Background()

	// Load and validate configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"upload_max_inflight_bytes", cfg.Upload.MaxInFlightBytes,
		"asset_backend", cfg.Assets.Backend,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"events_enabled", cfg.Events.Enabled(),
		"tracing_enabled", cfg.Telemetry.Enabled(),
	)

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	pool, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}
	store := postgres.New(pool)

	assets, err := assetstore.Open(ctx, cfg.Assets)
	if err != nil {
		slog.Error("failed to open asset store", "backend", cfg.Assets.Backend, "error", err)
		os.Exit(1)
	}

	var publisher core.EventPublisher = core.NopPublisher{}
	if cfg.Events.Enabled() {
		p, err := events.Connect(cfg.Events.URL, cfg.Events.Stream, cfg.Events.Subject)
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
		slog.Info("publishing catalog events", "subject", cfg.Events.Subject)
	}

	// A local asset root may be shared with catalogctl, so lock on disk.
	var locker core.SiteLocker = core.NewKeyedSiteLocker()
	if cfg.Assets.Backend == "local" {
		fl, err := core.NewFileSiteLocker(filepath.Join(cfg.Assets.Root, ".locks"))
		if err != nil {
			slog.Error("failed to create site locker", "error", err)
			os.Exit(1)
		}
		locker = fl
	}

	service, err := core.NewService(core.ServiceOptions{
		Catalog:      store,
		Sites:        store,
		Assets:       assets,
		Events:       publisher,
		Locker:       locker,
		Limiter:      core.NewIngestLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxInFlightBytes, cfg.Upload.MaxWaitTime),
		Metrics:      core.NewMetrics(prometheus.DefaultRegisterer),
		AssetOptions: assetstore.IngestOptions(cfg.Assets),
		Timeout:      cfg.Upload.Timeout,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg, web.WithReadiness(store.Ping))

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active ingestions to complete (with timeout)
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for ingestions to complete", "active", status.Active)
			if err := service.WaitForIngestions(shutdownCtx); err != nil {
				slog.Warn("ingestions did not complete in time", "error", err)
			} else {
				slog.Info("all ingestions completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
