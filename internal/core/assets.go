package core

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// AssetOptions configures image validation and transcoding.
type AssetOptions struct {
	// MaxSize is the per-payload byte cap.
	MaxSize int64

	// MaxDimension bounds the longer side of a stored image.
	MaxDimension int

	// MaxPixels rejects images whose declared dimensions exceed this area
	// before any pixel data is decoded.
	MaxPixels int64

	// Workers bounds concurrent decodes. Zero means GOMAXPROCS.
	Workers int

	// AllowPassthrough stores payloads that fail to decode or encode
	// unmodified instead of rejecting them.
	AllowPassthrough bool
}

// DefaultAssetOptions returns the stock limits.
func DefaultAssetOptions() AssetOptions {
	return AssetOptions{
		MaxSize:          DefaultMaxImageSize,
		MaxDimension:     DefaultMaxDimension,
		MaxPixels:        DefaultMaxPixels,
		AllowPassthrough: true,
	}
}

func (o AssetOptions) withDefaults() AssetOptions {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxImageSize
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// PreparedAsset is a processed payload that has not been written yet.
type PreparedAsset struct {
	Report IngestedAsset
	data   []byte
	ext    string
}

// Err returns an *UnsupportedAssetError when the asset was rejected.
func (p PreparedAsset) Err() error {
	if p.Report.Outcome != OutcomeRejected {
		return nil
	}
	return &UnsupportedAssetError{
		Name:   p.Report.OriginalName,
		Reason: p.Report.Reason,
		Detail: p.Report.Detail,
	}
}

// AssetBatch is the staged output of one ingestion.
type AssetBatch struct {
	// Assets reports every input in upload order.
	Assets []IngestedAsset

	// Paths maps original filename to stored relative path for accepted
	// assets only.
	Paths map[string]string
}

// Accepted counts assets that were written.
func (b *AssetBatch) Accepted() int {
	return len(b.Paths)
}

// Rejected counts assets that were not written.
func (b *AssetBatch) Rejected() int {
	return len(b.Assets) - len(b.Paths)
}

// AssetIngestor validates, transcodes, and stages uploaded images.
type AssetIngestor struct {
	store AssetStore
	opts  AssetOptions
	now   func() time.Time
}

// NewAssetIngestor creates an ingestor writing to store.
func NewAssetIngestor(store AssetStore, opts AssetOptions) *AssetIngestor {
	return &AssetIngestor{
		store: store,
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// Options returns the effective options.
func (a *AssetIngestor) Options() AssetOptions {
	return a.opts
}

// Ingest runs Prepare then Stage.
func (a *AssetIngestor) Ingest(ctx context.Context, stagingID string, siteID int64, files []AssetFile) (*AssetBatch, error) {
	prepared, err := a.Prepare(ctx, files)
	if err != nil {
		return nil, err
	}
	return a.Stage(ctx, stagingID, siteID, prepared)
}

// Prepare validates and transcodes every file on a bounded worker pool. It
// writes nothing. Only context cancellation is returned as an error;
// per-file problems are recorded on each report.
//
// When two files share an original name the last one wins and earlier ones
// are rejected as duplicate_name.
func (a *AssetIngestor) Prepare(ctx context.Context, files []AssetFile) ([]PreparedAsset, error) {
	out := make([]PreparedAsset, len(files))

	last := make(map[string]int, len(files))
	for i, f := range files {
		last[f.Name] = i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)

	for i, f := range files {
		out[i].Report = IngestedAsset{OriginalName: f.Name, Size: len(f.Data)}

		if last[f.Name] != i {
			out[i].Report.Outcome = OutcomeRejected
			out[i].Report.Reason = RejectDuplicateName
			out[i].Report.Detail = "superseded by a later file with the same name"
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := transcode(f.Data, a.opts)
			out[i].data = t.data
			out[i].Report.Outcome = t.outcome
			out[i].Report.Reason = t.reason
			out[i].Report.Detail = t.detail
			out[i].Report.MimeType = t.mime
			out[i].Report.Width = t.width
			out[i].Report.Height = t.height
			out[i].ext = t.ext
			if t.outcome.Accepted() {
				out[i].Report.Size = len(t.data)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stage names each accepted asset and writes it to the staging area.
func (a *AssetIngestor) Stage(ctx context.Context, stagingID string, siteID int64, prepared []PreparedAsset) (*AssetBatch, error) {
	batch := &AssetBatch{
		Assets: make([]IngestedAsset, 0, len(prepared)),
		Paths:  make(map[string]string),
	}
	used := make(map[string]bool)
	ts := a.now()

	for _, p := range prepared {
		report := p.Report
		if !report.Outcome.Accepted() {
			batch.Assets = append(batch.Assets, report)
			continue
		}

		name, err := a.uniqueName(ctx, siteID, storedFileName(report.OriginalName, p.ext, ts), used)
		if err != nil {
			return nil, err
		}
		used[name] = true

		rel := AssetPath(siteID, name)
		if err := a.store.Stage(ctx, stagingID, rel, p.data); err != nil {
			return nil, storageError("stage asset", fmt.Errorf("%s: %w", report.OriginalName, err))
		}

		report.StoredName = name
		report.Path = rel
		batch.Assets = append(batch.Assets, report)
		batch.Paths[report.OriginalName] = rel
	}

	return batch, nil
}

// uniqueName appends _2, _3, ... before the extension until the name is
// unused in this batch and absent from the site's asset directory.
func (a *AssetIngestor) uniqueName(ctx context.Context, siteID int64, name string, used map[string]bool) (string, error) {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 2; ; n++ {
		if !used[candidate] {
			exists, err := a.store.Exists(ctx, AssetPath(siteID, candidate))
			if err != nil {
				return "", storageError("check asset", err)
			}
			if !exists {
				return candidate, nil
			}
		}
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	unsafeExtChars  = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// storedFileName builds {sanitized base}_{unix seconds}.{ext}. The extension
// comes from the original name; sniffedExt is used when it has none.
func storedFileName(original, sniffedExt string, ts time.Time) string {
	original = path.Base(strings.ReplaceAll(original, `\`, "/"))

	ext := path.Ext(original)
	base := strings.TrimSuffix(original, ext)

	ext = unsafeExtChars.ReplaceAllString(ext, "")
	if ext == "" {
		ext = unsafeExtChars.ReplaceAllString(sniffedExt, "")
	}
	base = unsafeNameChars.ReplaceAllString(base, "_")
	if base == "" {
		base = "image"
	}

	if ext == "" {
		return fmt.Sprintf("%s_%d", base, ts.Unix())
	}
	return fmt.Sprintf("%s_%d.%s", base, ts.Unix(), ext)
}
