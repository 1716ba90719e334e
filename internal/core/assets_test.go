package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Unix(1700000000, 0)

func newTestIngestor(store AssetStore) *AssetIngestor {
	a := NewAssetIngestor(store, AssetOptions{Workers: 2, AllowPassthrough: true})
	a.now = func() time.Time { return fixedTime }
	return a
}

func TestStoredFileName(t *testing.T) {
	tests := []struct {
		original string
		sniffed  string
		want     string
	}{
		{"widget.png", ".png", "widget_1700000000.png"},
		{"My Photo (1).JPG", ".jpg", "My_Photo__1__1700000000.JPG"},
		{"noext", ".webp", "noext_1700000000.webp"},
		{"../../etc/passwd.png", ".png", "passwd_1700000000.png"},
		{`C:\Users\me\pic.gif`, ".gif", "pic_1700000000.gif"},
		{".png", ".png", "image_1700000000.png"},
		{"caf\u00e9.jpg", ".jpg", "caf__1700000000.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			if got := storedFileName(tt.original, tt.sniffed, fixedTime); got != tt.want {
				t.Errorf("storedFileName(%q) = %q, want %q", tt.original, got, tt.want)
			}
		})
	}
}

func TestAssetIngestor_Ingest(t *testing.T) {
	store := newMemAssetStore()
	a := newTestIngestor(store)

	files := []AssetFile{
		{Name: "widget.png", Data: encodeTestImage(t, 16, 16, "png")},
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "gadget.jpg", Data: encodeTestImage(t, 16, 16, "jpeg")},
	}

	batch, err := a.Ingest(context.Background(), "stage-1", 7, files)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if batch.Accepted() != 2 || batch.Rejected() != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 2/1", batch.Accepted(), batch.Rejected())
	}
	if len(batch.Assets) != 3 {
		t.Fatalf("assets = %d, want 3", len(batch.Assets))
	}

	for i, want := range []string{"widget.png", "notes.txt", "gadget.jpg"} {
		if batch.Assets[i].OriginalName != want {
			t.Errorf("Assets[%d] = %q, want %q", i, batch.Assets[i].OriginalName, want)
		}
	}

	if got := batch.Paths["widget.png"]; got != "assets/7/images/widget_1700000000.png" {
		t.Errorf("widget path = %q", got)
	}
	if r := batch.Assets[1]; r.Reason != RejectUnsupportedType || r.Path != "" {
		t.Errorf("notes.txt report = %+v", r)
	}
	if n := store.stagedCount(); n != 2 {
		t.Errorf("staged files = %d, want 2", n)
	}
	if len(store.files) != 0 {
		t.Error("Ingest wrote final files before promotion")
	}
}

func TestAssetIngestor_DuplicateNames(t *testing.T) {
	a := newTestIngestor(newMemAssetStore())

	first := encodeTestImage(t, 10, 10, "png")
	second := encodeTestImage(t, 20, 20, "png")

	batch, err := a.Ingest(context.Background(), "s", 1, []AssetFile{
		{Name: "dup.png", Data: first},
		{Name: "dup.png", Data: second},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if got := batch.Assets[0]; got.Outcome != OutcomeRejected || got.Reason != RejectDuplicateName {
		t.Errorf("first dup = %+v, want rejected duplicate_name", got)
	}
	if got := batch.Assets[1]; !got.Outcome.Accepted() || got.Width != 20 {
		t.Errorf("last dup = %+v, want accepted 20px", got)
	}
	if batch.Accepted() != 1 {
		t.Errorf("Accepted() = %d, want 1", batch.Accepted())
	}
}

func TestAssetIngestor_PrepareReportsProblems(t *testing.T) {
	a := NewAssetIngestor(newMemAssetStore(), AssetOptions{Workers: 2, AllowPassthrough: true})
	corrupt := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("not really a jpeg")...)

	prepared, err := a.Prepare(context.Background(), []AssetFile{
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "broken.jpg", Data: corrupt},
		{Name: "ok.png", Data: encodeTestImage(t, 8, 8, "png")},
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	var uae *UnsupportedAssetError
	if !errors.As(prepared[0].Err(), &uae) {
		t.Fatalf("notes.txt Err() = %v, want *UnsupportedAssetError", prepared[0].Err())
	}
	if uae.Name != "notes.txt" || uae.Reason != RejectUnsupportedType || uae.Detail == "" {
		t.Errorf("UnsupportedAssetError = %+v", uae)
	}
	if !strings.Contains(uae.Error(), "notes.txt") {
		t.Errorf("Error() = %q, want the asset name", uae.Error())
	}

	if got := prepared[1]; got.Err() != nil || got.Report.Outcome != OutcomeCopiedUnmodified || got.Report.Detail == "" {
		t.Errorf("broken.jpg = %+v (err %v), want copied_unmodified with detail", got.Report, got.Err())
	}
	if got := prepared[2]; got.Err() != nil || got.Report.Detail != "" {
		t.Errorf("ok.png = %+v (err %v)", got.Report, got.Err())
	}
}

func TestAssetIngestor_UniqueNames(t *testing.T) {
	store := newMemAssetStore()
	store.files["assets/3/images/photo_1700000000.png"] = []byte("existing")
	a := newTestIngestor(store)

	img := encodeTestImage(t, 8, 8, "png")
	batch, err := a.Ingest(context.Background(), "s", 3, []AssetFile{
		{Name: "photo.png", Data: img},
		{Name: "sub/photo.png", Data: img},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	want := map[string]string{
		"photo.png":     "assets/3/images/photo_1700000000_2.png",
		"sub/photo.png": "assets/3/images/photo_1700000000_3.png",
	}
	for name, p := range want {
		if got := batch.Paths[name]; got != p {
			t.Errorf("Paths[%q] = %q, want %q", name, got, p)
		}
	}
}

func TestAssetIngestor_StageError(t *testing.T) {
	store := newMemAssetStore()
	store.stageErr = errors.New("disk full")
	a := newTestIngestor(store)

	_, err := a.Ingest(context.Background(), "s", 1, []AssetFile{
		{Name: "a.png", Data: encodeTestImage(t, 4, 4, "png")},
	})

	var tse *TransientStorageError
	if !errors.As(err, &tse) {
		t.Fatalf("error = %v, want *TransientStorageError", err)
	}
	if !strings.Contains(tse.Op, "asset") {
		t.Errorf("Op = %q, want an asset operation", tse.Op)
	}
}

func TestAssetIngestor_Canceled(t *testing.T) {
	a := newTestIngestor(newMemAssetStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Prepare(ctx, []AssetFile{{Name: "a.png", Data: encodeTestImage(t, 4, 4, "png")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
