// Package postgres implements the catalog and site stores on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

// DefaultTimeout bounds single read queries.
const DefaultTimeout = 5 * time.Second

// PoolOptions overrides pgxpool defaults. Zero fields keep the default.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open creates a pgx pool for dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Store is a core.CatalogStore and core.SiteDirectory over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

const insertProduct = `
INSERT INTO products (site_id, item_name, image_name, price, description, assets, sample_image)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, price, created_at`

// ReplaceCatalog deletes the site's products and inserts r.Entries plus one
// upload record in a single transaction. A transaction-scoped advisory lock
// keyed by site id serializes concurrent replacements across processes.
func (s *Store) ReplaceCatalog(ctx context.Context, r core.Replacement) (*core.ReplaceResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", r.SiteID); err != nil {
		return nil, fmt.Errorf("lock site %d: %w", r.SiteID, err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM products WHERE site_id = $1", r.SiteID)
	if err != nil {
		return nil, fmt.Errorf("delete products: %w", err)
	}

	entries := make([]core.CatalogEntry, len(r.Entries))
	copy(entries, r.Entries)

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(insertProduct,
				r.SiteID, e.ItemName, e.ImageName, e.Price, e.Description, jsonArg(e.Assets), e.SampleImage)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range entries {
			entries[i].SiteID = r.SiteID
			if err := br.QueryRow().Scan(&entries[i].ID, &entries[i].Price, &entries[i].CreatedAt); err != nil {
				br.Close()
				return nil, fmt.Errorf("insert product %d (%s): %w", i+1, entries[i].ItemName, err)
			}
		}
		if err := br.Close(); err != nil {
			return nil, fmt.Errorf("insert products: %w", err)
		}
	}

	var uploadID int64
	err = tx.QueryRow(ctx,
		"INSERT INTO uploads (site_id, user_id, status) VALUES ($1, $2, $3) RETURNING id",
		r.SiteID, r.UserID, core.UploadStatusCompleted,
	).Scan(&uploadID)
	if err != nil {
		return nil, fmt.Errorf("insert upload record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &core.ReplaceResult{
		UploadID: uploadID,
		Entries:  entries,
		Removed:  tag.RowsAffected(),
	}, nil
}

// ListCatalog returns the site's products in insertion order.
func (s *Store) ListCatalog(ctx context.Context, siteID int64) ([]core.CatalogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var entries []core.CatalogEntry
	err := pgxscan.Select(ctx, s.pool, &entries, `
		SELECT id, site_id, item_name, image_name, price::float8 AS price,
		       description, assets, sample_image, created_at
		FROM products
		WHERE site_id = $1
		ORDER BY id`, siteID)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return entries, nil
}

// GetSite returns core.ErrSiteNotFound for unknown ids.
func (s *Store) GetSite(ctx context.Context, siteID int64) (*core.Site, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var site core.Site
	err := pgxscan.Get(ctx, s.pool, &site,
		"SELECT id, name, slug, owner_user_id, active FROM sites WHERE id = $1", siteID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.ErrSiteNotFound
		}
		return nil, fmt.Errorf("select site: %w", err)
	}
	return &site, nil
}

// CreateSite inserts a site and returns it with its id.
func (s *Store) CreateSite(ctx context.Context, site core.Site) (*core.Site, error) {
	err := s.pool.QueryRow(ctx,
		"INSERT INTO sites (name, slug, owner_user_id, active) VALUES ($1, $2, $3, $4) RETURNING id",
		site.Name, site.Slug, site.OwnerUserID, site.Active,
	).Scan(&site.ID)
	if err != nil {
		return nil, fmt.Errorf("insert site: %w", err)
	}
	return &site, nil
}

// ListUploads returns the most recent upload records for a site.
func (s *Store) ListUploads(ctx context.Context, siteID int64, limit int) ([]core.UploadRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var uploads []core.UploadRecord
	err := pgxscan.Select(ctx, s.pool, &uploads, `
		SELECT id, site_id, user_id, status, created_at
		FROM uploads
		WHERE site_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("select uploads: %w", err)
	}
	return uploads, nil
}

// jsonArg sends empty assets as SQL NULL.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
