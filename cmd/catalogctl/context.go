package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/JonMunkholm/sitecatalog/internal/config"
	"github.com/JonMunkholm/sitecatalog/internal/core"
	"github.com/JonMunkholm/sitecatalog/internal/logging"
	"github.com/JonMunkholm/sitecatalog/internal/store/postgres"
	"github.com/JonMunkholm/sitecatalog/internal/store/sqlite"
)

type globalFlags struct {
	sqlitePath string
	envFile    string
	json       bool
}

// catalogBackend is what the CLI needs from a database.
type catalogBackend interface {
	core.CatalogStore
	core.SiteDirectory
	core.UploadHistory
	CreateSite(ctx context.Context, site core.Site) (*core.Site, error)
}

type commandContext struct {
	flags *globalFlags

	// lookuper overrides the process environment in tests.
	lookuper envconfig.Lookuper

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig(ctx context.Context) (*config.Config, error) {
	c.configOnce.Do(func() {
		l := c.lookuper
		if l == nil {
			if err := loadEnvFile(c.flags.envFile); err != nil {
				c.configErr = err
				return
			}
			l = envconfig.OsLookuper()
		}

		cfg, err := config.Parse(ctx, l)
		if err != nil {
			c.configErr = err
			return
		}
		logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		c.config = cfg
	})
	return c.config, c.configErr
}

// loadEnvFile reads path, or .env when path is empty. A missing default
// .env is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// openBackend opens SQLite when --sqlite is set and PostgreSQL otherwise.
// The returned close func must be called when done.
func (c *commandContext) openBackend(ctx context.Context) (catalogBackend, func(), error) {
	if path := strings.TrimSpace(c.flags.sqlitePath); path != "" {
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	cfg := c.config
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL is required unless --sqlite is set")
	}
	pool, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return postgres.New(pool), pool.Close, nil
}
