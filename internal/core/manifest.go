package core

// manifest.go turns an uploaded product manifest into rows.
//
// CSV manifests are tokenized one physical line at a time: a line whose
// field count differs from the header is dropped rather than failing the
// whole document. Only the aggregate drop count is reported.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ParseManifest parses a CSV or XLSX manifest. The format is chosen by the
// file extension; anything other than .xlsx is read as CSV.
//
// An empty or header-only document yields a Manifest with no rows and no
// error. A header without an item_name column is a *ValidationError.
func ParseManifest(name string, data []byte) (*Manifest, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return parseXLSX(data)
	}
	return parseCSV(data)
}

func parseCSV(data []byte) (*Manifest, error) {
	data = bytes.TrimPrefix(data, byteOrderMark)
	text := strings.ToValidUTF8(string(data), "\uFFFD")

	m := &Manifest{}
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields, err := splitCSVLine(line)

		if m.Header == nil {
			if err != nil {
				return nil, &ValidationError{Field: "header", Message: "cannot be tokenized: " + err.Error()}
			}
			header, err := normalizeHeader(fields)
			if err != nil {
				return nil, err
			}
			m.Header = header
			continue
		}

		m.DataLines++
		if err != nil || len(fields) != len(m.Header) {
			m.DroppedRows++
			continue
		}
		m.addRow(i+1, fields)
	}

	return m, nil
}

// splitCSVLine tokenizes a single line honoring CSV quoting.
func splitCSVLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	fields, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty record")
		}
		return nil, err
	}
	return fields, nil
}

func parseXLSX(data []byte) (*Manifest, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Field: "manifest", Message: "unreadable workbook: " + err.Error()}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Manifest{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ValidationError{Field: "manifest", Message: "unreadable sheet: " + err.Error()}
	}

	m := &Manifest{}
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		for j := range row {
			row[j] = strings.ToValidUTF8(row[j], "\uFFFD")
		}

		if m.Header == nil {
			header, err := normalizeHeader(row)
			if err != nil {
				return nil, err
			}
			m.Header = header
			continue
		}

		m.DataLines++
		if len(row) > len(m.Header) {
			m.DroppedRows++
			continue
		}
		m.addRow(i+1, padRow(row, len(m.Header)))
	}

	return m, nil
}

// addRow zips fields onto the header and keeps the row only when item_name
// is non-empty.
func (m *Manifest) addRow(line int, fields []string) {
	values := make(map[string]string, len(m.Header))
	for i, name := range m.Header {
		values[name] = fields[i]
	}

	row := ManifestRow{Line: line, Fields: m.Header, Values: values}
	if row.Value(FieldItemName) == "" {
		m.DroppedRows++
		return
	}
	m.Rows = append(m.Rows, row)
}

func normalizeHeader(fields []string) ([]string, error) {
	header := make([]string, len(fields))
	hasItemName := false
	for i, f := range fields {
		header[i] = strings.ToLower(strings.TrimSpace(f))
		if header[i] == FieldItemName {
			hasItemName = true
		}
	}
	if !hasItemName {
		return nil, &ValidationError{Field: "header", Message: "missing required column " + FieldItemName}
	}
	return header, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
