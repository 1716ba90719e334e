package core

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
)

// memAssetStore is an in-memory AssetStore.
type memAssetStore struct {
	mu     sync.Mutex
	staged map[string]map[string][]byte
	files  map[string][]byte

	stageErr   error
	promoteErr error

	discarded []string
	promoted  []string
}

func newMemAssetStore() *memAssetStore {
	return &memAssetStore{
		staged: make(map[string]map[string][]byte),
		files:  make(map[string][]byte),
	}
}

func (m *memAssetStore) Stage(_ context.Context, stagingID, relPath string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stageErr != nil {
		return m.stageErr
	}
	if m.staged[stagingID] == nil {
		m.staged[stagingID] = make(map[string][]byte)
	}
	m.staged[stagingID][relPath] = data
	return nil
}

func (m *memAssetStore) Promote(_ context.Context, stagingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promoteErr != nil {
		return m.promoteErr
	}
	for p, data := range m.staged[stagingID] {
		m.files[p] = data
	}
	delete(m.staged, stagingID)
	m.promoted = append(m.promoted, stagingID)
	return nil
}

func (m *memAssetStore) Discard(_ context.Context, stagingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.staged, stagingID)
	m.discarded = append(m.discarded, stagingID)
	return nil
}

func (m *memAssetStore) Exists(_ context.Context, relPath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[relPath]
	return ok, nil
}

func (m *memAssetStore) stagedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, files := range m.staged {
		n += len(files)
	}
	return n
}

// memCatalogStore is an in-memory CatalogStore with all-or-nothing replace.
type memCatalogStore struct {
	mu      sync.Mutex
	entries map[int64][]CatalogEntry
	uploads []UploadRecord
	nextID  int64

	replaceErr   error
	replaceCalls int
}

func newMemCatalogStore() *memCatalogStore {
	return &memCatalogStore{entries: make(map[int64][]CatalogEntry)}
}

func (m *memCatalogStore) ReplaceCatalog(ctx context.Context, r Replacement) (*ReplaceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}

	now := time.Now().UTC()
	created := make([]CatalogEntry, len(r.Entries))
	for i, e := range r.Entries {
		m.nextID++
		e.ID = m.nextID
		e.CreatedAt = now
		created[i] = e
	}
	removed := int64(len(m.entries[r.SiteID]))
	m.entries[r.SiteID] = created

	m.nextID++
	m.uploads = append(m.uploads, UploadRecord{
		ID: m.nextID, SiteID: r.SiteID, UserID: r.UserID, Status: UploadStatusCompleted, CreatedAt: now,
	})

	return &ReplaceResult{UploadID: m.nextID, Entries: created, Removed: removed}, nil
}

func (m *memCatalogStore) ListCatalog(_ context.Context, siteID int64) ([]CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CatalogEntry(nil), m.entries[siteID]...), nil
}

func (m *memCatalogStore) ListUploads(_ context.Context, siteID int64, limit int) ([]UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UploadRecord
	for i := len(m.uploads) - 1; i >= 0 && len(out) < limit; i-- {
		if m.uploads[i].SiteID == siteID {
			out = append(out, m.uploads[i])
		}
	}
	return out, nil
}

// memSites is a map-backed SiteDirectory.
type memSites map[int64]*Site

func (m memSites) GetSite(_ context.Context, siteID int64) (*Site, error) {
	if s, ok := m[siteID]; ok {
		return s, nil
	}
	return nil, ErrSiteNotFound
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []CatalogReplaced
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt CatalogReplaced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

// encodeTestImage renders a solid w x h image in the given format.
func encodeTestImage(t *testing.T, w, h int, format string) []byte {
	t.Helper()

	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = imaging.Encode(&buf, img, imaging.JPEG)
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case "gif":
		err = imaging.Encode(&buf, img, imaging.GIF)
	case "webp":
		err = nativewebp.Encode(&buf, img, nil)
	default:
		t.Fatalf("unknown test format %q", format)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	return cfg.Width, cfg.Height
}
