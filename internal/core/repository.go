package core

import (
	"context"
	"path"
	"strconv"
)

// CatalogStore persists catalogs. ReplaceCatalog must be all-or-nothing:
// on error the site's previous entries are left untouched.
type CatalogStore interface {
	ReplaceCatalog(ctx context.Context, r Replacement) (*ReplaceResult, error)
	ListCatalog(ctx context.Context, siteID int64) ([]CatalogEntry, error)
}

// UploadHistory lists past ingestions, newest first. Catalog stores
// usually implement it.
type UploadHistory interface {
	ListUploads(ctx context.Context, siteID int64, limit int) ([]UploadRecord, error)
}

// SiteDirectory resolves site ownership. GetSite returns ErrSiteNotFound
// for unknown ids.
type SiteDirectory interface {
	GetSite(ctx context.Context, siteID int64) (*Site, error)
}

// AssetStore writes images in two phases. Stage writes under a staging area
// keyed by stagingID; Promote moves every staged file to its final path;
// Discard removes the staging area. Paths are relative, in the form
// assets/{site}/images/{name}.
type AssetStore interface {
	Stage(ctx context.Context, stagingID, relPath string, data []byte) error
	Promote(ctx context.Context, stagingID string) error
	Discard(ctx context.Context, stagingID string) error
	Exists(ctx context.Context, relPath string) (bool, error)
}

// EventPublisher announces committed catalogs.
type EventPublisher interface {
	Publish(ctx context.Context, evt CatalogReplaced) error
}

// SiteLocker serializes ingestions for one site. Lock blocks until the site
// is free or ctx is done, and returns the matching unlock func.
type SiteLocker interface {
	Lock(ctx context.Context, siteID int64) (unlock func(), err error)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, CatalogReplaced) error { return nil }

// AssetDir returns the relative image directory for a site.
func AssetDir(siteID int64) string {
	return path.Join("assets", strconv.FormatInt(siteID, 10), "images")
}

// AssetPath returns the relative stored path for name under a site.
func AssetPath(siteID int64, name string) string {
	return path.Join(AssetDir(siteID), name)
}
