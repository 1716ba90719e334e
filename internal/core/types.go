package core

import (
	"encoding/json"
	"strings"
	"time"
)

// Recognized manifest columns.
const (
	FieldItemName    = "item_name"
	FieldImageName   = "image_name"
	FieldPrice       = "price"
	FieldDescription = "description"
	FieldAssets      = "assets"
	FieldSampleImage = "sample_image"
)

// UploadStatusCompleted is the only status written for an upload record.
const UploadStatusCompleted = "completed"

// ManifestRow is one well-formed manifest data line. Fields preserves header
// order; Values is keyed by the lower-cased header name.
type ManifestRow struct {
	Line   int
	Fields []string
	Values map[string]string
}

// Get returns the trimmed value for field and whether the column exists.
func (r ManifestRow) Get(field string) (string, bool) {
	v, ok := r.Values[field]
	return strings.TrimSpace(v), ok
}

// Value returns the trimmed value for field or "" when absent.
func (r ManifestRow) Value(field string) string {
	v, _ := r.Get(field)
	return v
}

// Manifest is the parser output.
type Manifest struct {
	Header []string
	Rows   []ManifestRow

	// DataLines counts non-blank lines after the header.
	DataLines int

	// DroppedRows counts lines excluded for field-count mismatch, a
	// tokenization failure, or an empty item_name.
	DroppedRows int
}

// AssetFile is one uploaded image as received.
type AssetFile struct {
	Name string
	Data []byte
}

// AssetOutcome tags what the ingestor did with an asset.
type AssetOutcome string

const (
	OutcomeResized          AssetOutcome = "resized"
	OutcomeTranscoded       AssetOutcome = "transcoded"
	OutcomeCopiedUnmodified AssetOutcome = "copied_unmodified"
	OutcomeRejected         AssetOutcome = "rejected"
)

// Accepted reports whether the asset will be written to storage.
func (o AssetOutcome) Accepted() bool {
	return o != OutcomeRejected && o != ""
}

// RejectReason explains a rejected asset.
type RejectReason string

const (
	RejectUnsupportedType RejectReason = "unsupported_type"
	RejectTooLarge        RejectReason = "too_large"
	RejectUndecodable     RejectReason = "undecodable"
	RejectDuplicateName   RejectReason = "duplicate_name"
)

// IngestedAsset is the per-asset report returned to callers.
type IngestedAsset struct {
	OriginalName string       `json:"original_name"`
	Outcome      AssetOutcome `json:"outcome"`
	Reason       RejectReason `json:"reason,omitempty"`
	Detail       string       `json:"detail,omitempty"`
	StoredName   string       `json:"stored_name,omitempty"`
	Path         string       `json:"path,omitempty"`
	MimeType     string       `json:"mime,omitempty"`
	Size         int          `json:"size"`
	Width        int          `json:"width,omitempty"`
	Height       int          `json:"height,omitempty"`
}

// CatalogEntry is a persisted product.
type CatalogEntry struct {
	ID          int64           `json:"id" db:"id"`
	SiteID      int64           `json:"site_id" db:"site_id"`
	ItemName    string          `json:"item_name" db:"item_name"`
	ImageName   *string         `json:"image_name" db:"image_name"`
	Price       *float64        `json:"price" db:"price"`
	Description *string         `json:"description" db:"description"`
	Assets      json.RawMessage `json:"assets" db:"assets"`
	SampleImage *string         `json:"sample_image" db:"sample_image"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// UploadRecord is the audit row written once per successful ingestion.
type UploadRecord struct {
	ID        int64     `json:"id" db:"id"`
	SiteID    int64     `json:"site_id" db:"site_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Site is the owning tenant of a catalog.
type Site struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Slug        string `json:"slug" db:"slug"`
	OwnerUserID int64  `json:"owner_user_id" db:"owner_user_id"`
	Active      bool   `json:"active" db:"active"`
}

// OwnedBy reports whether userID owns the site.
func (s *Site) OwnedBy(userID int64) bool {
	return s != nil && s.OwnerUserID == userID
}

// Candidate is a manifest row with its image reference resolved.
type Candidate struct {
	Row       ManifestRow
	ImageName string
}

// Replacement is what a CatalogStore commits in one transaction.
type Replacement struct {
	SiteID  int64
	UserID  int64
	Entries []CatalogEntry
}

// ReplaceResult is returned after a committed replacement.
type ReplaceResult struct {
	UploadID int64
	Entries  []CatalogEntry
	Removed  int64
}

// Request is one ingestion: a manifest and the uploaded images for a site.
type Request struct {
	SiteID       int64
	UserID       int64
	ManifestName string
	Manifest     []byte
	Images       []AssetFile
}

// Result is the ingestion summary returned to callers.
type Result struct {
	Success        bool            `json:"success"`
	UploadID       int64           `json:"upload_id"`
	ProductsCount  int             `json:"products_count"`
	ImagesUploaded int             `json:"images_uploaded"`
	Products       []CatalogEntry  `json:"products"`
	RowsDropped    int             `json:"rows_dropped"`
	ImagesRejected int             `json:"images_rejected"`
	Assets         []IngestedAsset `json:"assets"`
	IngestionID    string          `json:"ingestion_id"`
}

// CatalogReplaced is published after a successful ingestion.
type CatalogReplaced struct {
	IngestionID    string    `json:"ingestion_id"`
	SiteID         int64     `json:"site_id"`
	UserID         int64     `json:"user_id"`
	UploadID       int64     `json:"upload_id"`
	ProductsCount  int       `json:"products_count"`
	ImagesUploaded int       `json:"images_uploaded"`
	OccurredAt     time.Time `json:"occurred_at"`
}
