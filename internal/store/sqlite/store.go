// Package sqlite implements the catalog and site stores on a local SQLite
// file. It backs catalogctl and single-host development setups.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store is a core.CatalogStore and core.SiteDirectory over SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps the per-connection pragmas in force and
	// serializes writers inside this process.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ReplaceCatalog deletes the site's products and inserts r.Entries plus one
// upload record in a single transaction.
func (s *Store) ReplaceCatalog(ctx context.Context, r core.Replacement) (*core.ReplaceResult, error) {
	var result *core.ReplaceResult
	err := retryOnBusy(ctx, func() error {
		var err error
		result, err = s.replace(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) replace(ctx context.Context, r core.Replacement) (*core.ReplaceResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, "DELETE FROM products WHERE site_id = ?", r.SiteID)
	if err != nil {
		return nil, fmt.Errorf("delete products: %w", err)
	}
	removed, _ := res.RowsAffected()

	now := s.now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (site_id, item_name, image_name, price, description, assets, sample_image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	entries := make([]core.CatalogEntry, len(r.Entries))
	for i, e := range r.Entries {
		e.SiteID = r.SiteID
		e.CreatedAt = now
		err := stmt.QueryRowContext(ctx,
			e.SiteID, e.ItemName, e.ImageName, e.Price, e.Description, jsonArg(e.Assets), e.SampleImage, stamp,
		).Scan(&e.ID)
		if err != nil {
			return nil, fmt.Errorf("insert product %d (%s): %w", i+1, e.ItemName, err)
		}
		entries[i] = e
	}

	var uploadID int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO uploads (site_id, user_id, status, created_at) VALUES (?, ?, ?, ?) RETURNING id",
		r.SiteID, r.UserID, core.UploadStatusCompleted, stamp,
	).Scan(&uploadID)
	if err != nil {
		return nil, fmt.Errorf("insert upload record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &core.ReplaceResult{UploadID: uploadID, Entries: entries, Removed: removed}, nil
}

// ListCatalog returns the site's products in insertion order.
func (s *Store) ListCatalog(ctx context.Context, siteID int64) ([]core.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_id, item_name, image_name, price, description, assets, sample_image, created_at
		FROM products
		WHERE site_id = ?
		ORDER BY id`, siteID)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var entries []core.CatalogEntry
	for rows.Next() {
		var (
			e                           core.CatalogEntry
			image, desc, assets, sample sql.NullString
			price                       sql.NullFloat64
			created                     string
		)
		if err := rows.Scan(&e.ID, &e.SiteID, &e.ItemName, &image, &price, &desc, &assets, &sample, &created); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		e.ImageName = nullString(image)
		e.Description = nullString(desc)
		e.SampleImage = nullString(sample)
		if price.Valid {
			v := price.Float64
			e.Price = &v
		}
		if assets.Valid {
			e.Assets = json.RawMessage(assets.String)
		}
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return entries, nil
}

// GetSite returns core.ErrSiteNotFound for unknown ids.
func (s *Store) GetSite(ctx context.Context, siteID int64) (*core.Site, error) {
	var site core.Site
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, slug, owner_user_id, active FROM sites WHERE id = ?", siteID,
	).Scan(&site.ID, &site.Name, &site.Slug, &site.OwnerUserID, &site.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSiteNotFound
		}
		return nil, fmt.Errorf("select site: %w", err)
	}
	return &site, nil
}

// CreateSite inserts a site and returns it with its id.
func (s *Store) CreateSite(ctx context.Context, site core.Site) (*core.Site, error) {
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"INSERT INTO sites (name, slug, owner_user_id, active, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id",
			site.Name, site.Slug, site.OwnerUserID, site.Active, s.now().UTC().Format(time.RFC3339Nano),
		).Scan(&site.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("insert site: %w", err)
	}
	return &site, nil
}

// ListUploads returns the most recent upload records for a site.
func (s *Store) ListUploads(ctx context.Context, siteID int64, limit int) ([]core.UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_id, user_id, status, created_at
		FROM uploads
		WHERE site_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("select uploads: %w", err)
	}
	defer rows.Close()

	var uploads []core.UploadRecord
	for rows.Next() {
		var (
			u       core.UploadRecord
			created string
		)
		if err := rows.Scan(&u.ID, &u.SiteID, &u.UserID, &u.Status, &created); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		u.CreatedAt = parseTime(created)
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return uploads, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
