package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JonMunkholm/sitecatalog/internal/logging"
)

var tracer = otel.Tracer("github.com/JonMunkholm/sitecatalog/internal/core")

// ServiceOptions wires the Service to its collaborators. Catalog and Assets
// are required; the rest fall back to in-process defaults.
type ServiceOptions struct {
	Catalog CatalogStore
	Sites   SiteDirectory
	Assets  AssetStore
	Events  EventPublisher
	Locker  SiteLocker
	Limiter *IngestLimiter
	Metrics *Metrics

	AssetOptions AssetOptions

	// Timeout bounds a single ingestion. Zero means no extra bound beyond
	// the caller's context.
	Timeout time.Duration
}

// Service runs catalog ingestions.
type Service struct {
	catalog  CatalogStore
	sites    SiteDirectory
	store    AssetStore
	events   EventPublisher
	locker   SiteLocker
	limiter  *IngestLimiter
	metrics  *Metrics
	ingestor *AssetIngestor
	replacer *CatalogReplacer
	timeout  time.Duration
}

// NewService creates a Service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog store is required")
	}
	if opts.Assets == nil {
		return nil, errors.New("asset store is required")
	}
	if opts.Events == nil {
		opts.Events = NopPublisher{}
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedSiteLocker()
	}
	if opts.Limiter == nil {
		opts.Limiter = NewIngestLimiter(DefaultMaxConcurrentIngestions, DefaultMaxInFlightBytes, DefaultMaxWaitTime)
	}

	return &Service{
		catalog:  opts.Catalog,
		sites:    opts.Sites,
		store:    opts.Assets,
		events:   opts.Events,
		locker:   opts.Locker,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		ingestor: NewAssetIngestor(opts.Assets, opts.AssetOptions),
		replacer: NewCatalogReplacer(opts.Catalog),
		timeout:  opts.Timeout,
	}, nil
}

// Authorize returns the site when userID may manage it. Admins manage every
// site; other users only the sites they own.
func (s *Service) Authorize(ctx context.Context, siteID, userID int64, admin bool) (*Site, error) {
	if s.sites == nil {
		return nil, errors.New("site directory is not configured")
	}
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !admin && !site.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return site, nil
}

// Catalog returns the live entries for a site.
func (s *Service) Catalog(ctx context.Context, siteID int64) ([]CatalogEntry, error) {
	entries, err := s.catalog.ListCatalog(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return entries, nil
}

// Uploads returns up to limit recent upload records for a site.
func (s *Service) Uploads(ctx context.Context, siteID int64, limit int) ([]UploadRecord, error) {
	h, ok := s.catalog.(UploadHistory)
	if !ok {
		return nil, errors.New("catalog store does not record upload history")
	}
	records, err := h.ListUploads(ctx, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return records, nil
}

// LimiterStatus returns the ingestion limiter state for monitoring.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForIngestions blocks until running ingestions finish or ctx is done.
func (s *Service) WaitForIngestions(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Ingest replaces a site's catalog with the contents of req.
//
// The manifest is parsed first; a *ValidationError or *ZeroRowsError is
// returned before any image is touched. Images are then transcoded without
// holding the site lock. With the lock held, accepted images are staged,
// rows are correlated with them, and the catalog is swapped in one
// transaction. Staged images are promoted only after commit and discarded
// on any failure.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ingestionID := uuid.NewString()
	log := logging.WithFields(ctx, "ingestion_id", ingestionID, "site_id", req.SiteID)

	ctx, span := tracer.Start(ctx, "catalog.ingest", trace.WithAttributes(
		attribute.String("ingestion.id", ingestionID),
		attribute.Int64("site.id", req.SiteID),
		attribute.Int("images.count", len(req.Images)),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	release, err := s.limiter.Acquire(ctx, requestBytes(req))
	if err != nil {
		s.fail(span, log, err, start)
		return nil, err
	}
	defer release()

	log.Info("ingestion started",
		"user_id", req.UserID,
		"manifest", req.ManifestName,
		"images", len(req.Images),
	)

	result, err := s.ingest(ctx, log, ingestionID, req)
	if err != nil {
		s.fail(span, log, err, start)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("upload.id", result.UploadID),
		attribute.Int("products.count", result.ProductsCount),
	)
	s.metrics.observeResult("success", start)
	log.Info("ingestion completed",
		"upload_id", result.UploadID,
		"products", result.ProductsCount,
		"images_uploaded", result.ImagesUploaded,
		"images_rejected", result.ImagesRejected,
		"rows_dropped", result.RowsDropped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (s *Service) ingest(ctx context.Context, log *slog.Logger, ingestionID string, req Request) (*Result, error) {
	manifest, err := s.parse(ctx, req)
	if err != nil {
		return nil, err
	}

	prepared, err := s.prepare(ctx, log, req.Images)
	if err != nil {
		return nil, err
	}
	s.metrics.observeAssets(reports(prepared))

	unlock, err := s.locker.Lock(ctx, req.SiteID)
	if err != nil {
		return nil, fmt.Errorf("acquire site lock: %w", err)
	}
	defer unlock()

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := s.store.Discard(context.WithoutCancel(ctx), ingestionID); err != nil {
			log.Warn("discard staged assets failed", "error", err)
		}
	}()

	batch, err := s.ingestor.Stage(ctx, ingestionID, req.SiteID, prepared)
	if err != nil {
		return nil, err
	}

	candidates := Correlate(manifest.Rows, batch.Paths)

	replaced, err := s.replace(ctx, req, candidates)
	if err != nil {
		return nil, err
	}
	committed = true

	if batch.Accepted() > 0 {
		if err := s.store.Promote(context.WithoutCancel(ctx), ingestionID); err != nil {
			// The catalog is already committed; staged files stay put for
			// manual recovery.
			s.metrics.observePromoteFailure()
			log.Error("promote staged assets failed",
				"upload_id", replaced.UploadID,
				"staging_id", ingestionID,
				"error", err,
			)
		}
	}

	evt := CatalogReplaced{
		IngestionID:    ingestionID,
		SiteID:         req.SiteID,
		UserID:         req.UserID,
		UploadID:       replaced.UploadID,
		ProductsCount:  len(replaced.Entries),
		ImagesUploaded: batch.Accepted(),
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		log.Warn("publish catalog event failed", "error", err)
	}

	return &Result{
		Success:        true,
		UploadID:       replaced.UploadID,
		ProductsCount:  len(replaced.Entries),
		ImagesUploaded: batch.Accepted(),
		Products:       replaced.Entries,
		RowsDropped:    manifest.DroppedRows,
		ImagesRejected: batch.Rejected(),
		Assets:         batch.Assets,
		IngestionID:    ingestionID,
	}, nil
}

func (s *Service) parse(ctx context.Context, req Request) (*Manifest, error) {
	_, span := tracer.Start(ctx, "catalog.parse_manifest")
	defer span.End()

	manifest, err := ParseManifest(req.ManifestName, req.Manifest)
	if err != nil {
		return nil, err
	}
	s.metrics.observeManifest(manifest.DroppedRows)
	span.SetAttributes(
		attribute.Int("rows.accepted", len(manifest.Rows)),
		attribute.Int("rows.dropped", manifest.DroppedRows),
	)

	if len(manifest.Rows) == 0 {
		return nil, &ZeroRowsError{DataLines: manifest.DataLines, Dropped: manifest.DroppedRows}
	}
	return manifest, nil
}

func (s *Service) prepare(ctx context.Context, log *slog.Logger, images []AssetFile) ([]PreparedAsset, error) {
	ctx, span := tracer.Start(ctx, "catalog.prepare_assets")
	defer span.End()

	prepared, err := s.ingestor.Prepare(ctx, images)
	if err != nil {
		return nil, err
	}

	for _, p := range prepared {
		if err := p.Err(); err != nil {
			log.Warn("asset rejected", "asset", p.Report.OriginalName, "error", err)
			continue
		}
		if p.Report.Outcome == OutcomeCopiedUnmodified {
			log.Warn("asset stored unmodified",
				"asset", p.Report.OriginalName,
				"mime", p.Report.MimeType,
				"detail", p.Report.Detail,
			)
		}
	}
	return prepared, nil
}

func (s *Service) replace(ctx context.Context, req Request, candidates []Candidate) (*ReplaceResult, error) {
	ctx, span := tracer.Start(ctx, "catalog.replace")
	defer span.End()

	return s.replacer.Replace(ctx, req.SiteID, req.UserID, candidates)
}

func (s *Service) fail(span trace.Span, log *slog.Logger, err error, start time.Time) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	label := resultLabel(err)
	s.metrics.observeResult(label, start)

	switch label {
	case "storage", "error":
		log.Error("ingestion failed", "result", label, "error", err)
	default:
		log.Warn("ingestion rejected", "result", label, "error", err)
	}
}

func resultLabel(err error) string {
	var (
		ve  *ValidationError
		zre *ZeroRowsError
		tse *TransientStorageError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &zre):
		return "zero_rows"
	case errors.Is(err, ErrTooManyUploads):
		return "busy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &tse):
		return "storage"
	default:
		return "error"
	}
}

func reports(prepared []PreparedAsset) []IngestedAsset {
	out := make([]IngestedAsset, len(prepared))
	for i, p := range prepared {
		out[i] = p.Report
	}
	return out
}
