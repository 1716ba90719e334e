package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

func openTestStore(t *testing.T) (*Store, *core.Site) {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	site, err := s.CreateSite(context.Background(), core.Site{Name: "Shop", Slug: "shop", OwnerUserID: 10, Active: true})
	if err != nil {
		t.Fatalf("CreateSite() error = %v", err)
	}
	return s, site
}

func entries(names ...string) []core.CatalogEntry {
	out := make([]core.CatalogEntry, len(names))
	for i, n := range names {
		out[i] = core.CatalogEntry{ItemName: n}
	}
	return out
}

func TestStore_ReplaceCatalog(t *testing.T) {
	s, site := openTestStore(t)
	ctx := context.Background()

	price := 5.0
	img := "widget_1700000000.png"
	first := []core.CatalogEntry{
		{ItemName: "Widget", ImageName: &img, Price: &price, Assets: []byte(`{"color":"red"}`)},
		{ItemName: "Gadget"},
	}

	res, err := s.ReplaceCatalog(ctx, core.Replacement{SiteID: site.ID, UserID: 10, Entries: first})
	if err != nil {
		t.Fatalf("ReplaceCatalog() error = %v", err)
	}
	if res.UploadID == 0 || res.Removed != 0 {
		t.Errorf("result = %+v", res)
	}
	for _, e := range res.Entries {
		if e.ID == 0 || e.SiteID != site.ID || e.CreatedAt.IsZero() {
			t.Errorf("entry not populated: %+v", e)
		}
	}

	got, err := s.ListCatalog(ctx, site.ID)
	if err != nil {
		t.Fatalf("ListCatalog() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if core.String(got[0].ImageName) != img || core.FormatPrice(got[0].Price) != "5.00" {
		t.Errorf("Widget = %+v", got[0])
	}
	if string(got[0].Assets) != `{"color":"red"}` {
		t.Errorf("assets = %s", got[0].Assets)
	}
	if got[1].ImageName != nil || got[1].Price != nil || got[1].Assets != nil {
		t.Errorf("Gadget nullable fields = %+v", got[1])
	}
}

func TestStore_ReplaceKeepsPricePrecision(t *testing.T) {
	s, site := openTestStore(t)
	ctx := context.Background()

	prices := []float64{0.125, 1e12, 12345678901.5}
	var in []core.CatalogEntry
	for i := range prices {
		in = append(in, core.CatalogEntry{ItemName: fmt.Sprintf("Item %d", i+1), Price: &prices[i]})
	}

	res, err := s.ReplaceCatalog(ctx, core.Replacement{SiteID: site.ID, UserID: 7, Entries: in})
	if err != nil {
		t.Fatalf("ReplaceCatalog() error = %v", err)
	}

	got, err := s.ListCatalog(ctx, site.ID)
	if err != nil {
		t.Fatalf("ListCatalog() error = %v", err)
	}
	if len(got) != len(prices) {
		t.Fatalf("entries = %d, want %d", len(got), len(prices))
	}
	for i, want := range prices {
		if got[i].Price == nil || *got[i].Price != want {
			t.Errorf("stored price %d = %v, want %v", i, got[i].Price, want)
		}
		if res.Entries[i].Price == nil || *res.Entries[i].Price != want {
			t.Errorf("returned price %d = %v, want %v", i, res.Entries[i].Price, want)
		}
	}
}

func TestStore_ReplaceIsWholesale(t *testing.T) {
	s, site := openTestStore(t)
	ctx := context.Background()

	for _, batch := range [][]core.CatalogEntry{entries("A", "B", "C"), entries("D")} {
		if _, err := s.ReplaceCatalog(ctx, core.Replacement{SiteID: site.ID, UserID: 1, Entries: batch}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListCatalog(ctx, site.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ItemName != "D" {
		t.Errorf("catalog = %+v, want only D", got)
	}
}

func TestStore_ReplaceIsIdempotent(t *testing.T) {
	s, site := openTestStore(t)
	ctx := context.Background()

	var results []*core.ReplaceResult
	for i := 0; i < 2; i++ {
		res, err := s.ReplaceCatalog(ctx, core.Replacement{SiteID: site.ID, UserID: 1, Entries: entries("A", "B")})
		if err != nil {
			t.Fatal(err)
		}
		results = append(results, res)
	}

	if results[0].UploadID == results[1].UploadID {
		t.Error("upload ids should differ")
	}
	got, _ := s.ListCatalog(ctx, site.ID)
	if len(got) != 2 || got[0].ItemName != "A" || got[1].ItemName != "B" {
		t.Errorf("catalog = %+v", got)
	}

	uploads, err := s.ListUploads(ctx, site.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(uploads) != 2 || uploads[0].Status != core.UploadStatusCompleted {
		t.Errorf("uploads = %+v", uploads)
	}
}

func TestStore_ReplaceRollsBackPartialInsert(t *testing.T) {
	s, site := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceCatalog(ctx, core.Replacement{SiteID: site.ID, UserID: 1, Entries: entries("Keep")}); err != nil {
		t.Fatal(err)
	}

	// The empty item name violates the CHECK constraint on the third insert.
	_, err := s.ReplaceCatalog(ctx, core.Replacement{SiteID: site.ID, UserID: 1, Entries: entries("X", "Y", "", "Z")})
	if err == nil {
		t.Fatal("ReplaceCatalog() succeeded with an invalid entry")
	}

	got, err := s.ListCatalog(ctx, site.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ItemName != "Keep" {
		t.Errorf("catalog = %+v, want previous catalog", got)
	}

	uploads, _ := s.ListUploads(ctx, site.ID, 10)
	if len(uploads) != 1 {
		t.Errorf("uploads = %d, want 1", len(uploads))
	}
}

func TestStore_ReplaceUnknownSite(t *testing.T) {
	s, _ := openTestStore(t)

	if _, err := s.ReplaceCatalog(context.Background(), core.Replacement{SiteID: 999, Entries: entries("A")}); err == nil {
		t.Error("ReplaceCatalog() for a missing site succeeded")
	}
}

func TestStore_ReplaceCanceled(t *testing.T) {
	s, site := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.ReplaceCatalog(ctx, core.Replacement{SiteID: site.ID, Entries: entries("A")}); err == nil {
		t.Error("ReplaceCatalog() with a canceled context succeeded")
	}
}

func TestStore_GetSite(t *testing.T) {
	s, site := openTestStore(t)

	got, err := s.GetSite(context.Background(), site.ID)
	if err != nil {
		t.Fatalf("GetSite() error = %v", err)
	}
	if got.Name != "Shop" || got.OwnerUserID != 10 || !got.Active {
		t.Errorf("site = %+v", got)
	}

	if _, err := s.GetSite(context.Background(), 404); !errors.Is(err, core.ErrSiteNotFound) {
		t.Errorf("GetSite(404) error = %v, want ErrSiteNotFound", err)
	}
}

func TestStore_WithService(t *testing.T) {
	s, site := openTestStore(t)

	svc, err := core.NewService(core.ServiceOptions{
		Catalog: s,
		Sites:   s,
		Assets:  nopAssets{},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Ingest(context.Background(), core.Request{
		SiteID:       site.ID,
		UserID:       10,
		ManifestName: "products.csv",
		Manifest:     []byte("item_name,price\nWidget,5\nGadget,10\n"),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.ProductsCount != 2 || res.ImagesUploaded != 0 {
		t.Errorf("result = %+v", res)
	}
	for _, p := range res.Products {
		if p.ImageName != nil {
			t.Errorf("%s image_name = %q, want null", p.ItemName, *p.ImageName)
		}
	}
}

type nopAssets struct{}

func (nopAssets) Stage(context.Context, string, string, []byte) error { return nil }
func (nopAssets) Promote(context.Context, string) error               { return nil }
func (nopAssets) Discard(context.Context, string) error               { return nil }
func (nopAssets) Exists(context.Context, string) (bool, error)        { return false, nil }
