package core

import (
	"errors"
	"fmt"
)

// ErrSiteNotFound is returned by SiteDirectory when no site matches.
var ErrSiteNotFound = errors.New("site not found")

// ErrForbidden is returned when a user may not manage a site.
var ErrForbidden = errors.New("not permitted to manage this site")

// ValidationError reports a manifest that cannot be processed at all.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid manifest: " + e.Message
	}
	return fmt.Sprintf("invalid manifest: %s: %s", e.Field, e.Message)
}

// UnsupportedAssetError describes why a single asset was rejected. It is
// recorded on the asset report and never aborts an ingestion.
type UnsupportedAssetError struct {
	Name   string
	Reason RejectReason
	Detail string
}

func (e *UnsupportedAssetError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("asset %q rejected: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("asset %q rejected: %s: %s", e.Name, e.Reason, e.Detail)
}

// ZeroRowsError is returned when a manifest yields no usable rows.
type ZeroRowsError struct {
	DataLines int
	Dropped   int
}

func (e *ZeroRowsError) Error() string {
	return fmt.Sprintf("no valid products found in manifest (%d data lines, %d dropped)", e.DataLines, e.Dropped)
}

// TransientStorageError wraps a failed write to the catalog or asset store.
// The prior catalog is unchanged when this is returned.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	var tse *TransientStorageError
	if errors.As(err, &tse) {
		return err
	}
	return &TransientStorageError{Op: op, Err: err}
}
