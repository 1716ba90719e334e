package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CatalogReplacer maps candidates to catalog entries and swaps them in.
type CatalogReplacer struct {
	store CatalogStore
}

// NewCatalogReplacer creates a replacer over store.
func NewCatalogReplacer(store CatalogStore) *CatalogReplacer {
	return &CatalogReplacer{store: store}
}

// Replace atomically replaces siteID's catalog with candidates and records
// one completed upload for userID. Any store failure is returned as a
// *TransientStorageError and leaves the previous catalog in place.
func (r *CatalogReplacer) Replace(ctx context.Context, siteID, userID int64, candidates []Candidate) (*ReplaceResult, error) {
	entries := make([]CatalogEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, BuildEntry(siteID, c))
	}

	res, err := r.store.ReplaceCatalog(ctx, Replacement{
		SiteID:  siteID,
		UserID:  userID,
		Entries: entries,
	})
	if err != nil {
		return nil, storageError("replace catalog", err)
	}
	return res, nil
}

// BuildEntry maps one candidate to an unsaved entry. Empty optional cells
// become nil, an unparseable price becomes nil, and assets text that is not
// a JSON object becomes nil.
func BuildEntry(siteID int64, c Candidate) CatalogEntry {
	return CatalogEntry{
		SiteID:      siteID,
		ItemName:    c.Row.Value(FieldItemName),
		ImageName:   optional(c.ImageName),
		Price:       ParsePrice(c.Row.Value(FieldPrice)),
		Description: optional(c.Row.Value(FieldDescription)),
		Assets:      ParseAssets(c.Row.Value(FieldAssets)),
		SampleImage: optional(c.Row.Value(FieldSampleImage)),
	}
}

var (
	numericRegex   = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	thousandsRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)
)

// ParsePrice parses a price cell, tolerating currency symbols, thousands
// separators, and accounting negatives like "(12.50)".
func ParsePrice(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "\u20ac", "", "\u00a3", "").Replace(s)
	s = strings.TrimSpace(s)
	// Commas only as thousands separators; "1,5" is ambiguous.
	if strings.Contains(s, ",") {
		if !thousandsRegex.MatchString(s) {
			return nil
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	if !numericRegex.MatchString(s) {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	if negative {
		v = -v
	}
	return &v
}

// ParseAssets returns s compacted when it is a JSON object, else nil.
func ParseAssets(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// String renders a nullable string for logs and tables.
func String(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// FormatPrice renders a nullable price with two decimals.
func FormatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *p)
}
