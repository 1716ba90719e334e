package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseManifest_CSV(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantItems   []string
		wantDropped int
		wantLines   int
	}{
		{
			name:      "five columns",
			input:     "item_name,image_name,price,description,assets\nA,a.jpg,1,first,{}\nB,b.jpg,2,second,\nC,,3,,\n",
			wantItems: []string{"A", "B", "C"},
			wantLines: 3,
		},
		{
			name:        "short and long rows are dropped",
			input:       "item_name,price\nWidget,5\nBroken\nGadget,10\nToo,many,fields\n",
			wantItems:   []string{"Widget", "Gadget"},
			wantDropped: 2,
			wantLines:   4,
		},
		{
			name:      "crlf and blank lines",
			input:     "item_name,price\r\n\r\nWidget,5\r\n   \r\nGadget,10\r\n",
			wantItems: []string{"Widget", "Gadget"},
			wantLines: 2,
		},
		{
			name:      "quoted commas",
			input:     "item_name,description\n\"Desk, oak\",\"Large, sturdy\"\n",
			wantItems: []string{"Desk, oak"},
			wantLines: 1,
		},
		{
			name:      "bom and mixed case header",
			input:     "\xEF\xBB\xBFItem_Name , Price\nWidget,5\n",
			wantItems: []string{"Widget"},
			wantLines: 1,
		},
		{
			name:        "empty item name is dropped",
			input:       "item_name,price\n  ,5\nWidget,1\n",
			wantItems:   []string{"Widget"},
			wantDropped: 1,
			wantLines:   2,
		},
		{
			name:      "header only",
			input:     "item_name,price\n",
			wantItems: nil,
		},
		{
			name:      "empty document",
			input:     "",
			wantItems: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest("products.csv", []byte(tt.input))
			if err != nil {
				t.Fatalf("ParseManifest() error = %v", err)
			}

			var got []string
			for _, row := range m.Rows {
				got = append(got, row.Value(FieldItemName))
			}
			if strings.Join(got, "|") != strings.Join(tt.wantItems, "|") {
				t.Errorf("items = %q, want %q", got, tt.wantItems)
			}
			if m.DroppedRows != tt.wantDropped {
				t.Errorf("DroppedRows = %d, want %d", m.DroppedRows, tt.wantDropped)
			}
			if m.DataLines != tt.wantLines {
				t.Errorf("DataLines = %d, want %d", m.DataLines, tt.wantLines)
			}
		})
	}
}

func TestParseManifest_RowValues(t *testing.T) {
	input := "item_name,image_name,price,extra\nWidget, widget.png ,9.99,ignored\n"

	m, err := ParseManifest("p.csv", []byte(input))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if len(m.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(m.Rows))
	}

	row := m.Rows[0]
	if row.Line != 2 {
		t.Errorf("Line = %d, want 2", row.Line)
	}
	if got := row.Value(FieldImageName); got != "widget.png" {
		t.Errorf("image_name = %q, want %q", got, "widget.png")
	}
	if got := row.Value("extra"); got != "ignored" {
		t.Errorf("extra = %q, want %q", got, "ignored")
	}
	if _, ok := row.Get(FieldDescription); ok {
		t.Error("Get(description) reported a column that is not in the header")
	}
}

func TestParseManifest_InvalidUTF8(t *testing.T) {
	input := []byte("item_name,description\nWidget,caf\xe9\n")

	m, err := ParseManifest("p.csv", input)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if got := m.Rows[0].Value(FieldDescription); got != "caf\uFFFD" {
		t.Errorf("description = %q, want replacement character", got)
	}
}

func TestParseManifest_MissingItemName(t *testing.T) {
	_, err := ParseManifest("p.csv", []byte("name,price\nWidget,5\n"))

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if ve.Field != "header" {
		t.Errorf("Field = %q, want %q", ve.Field, "header")
	}
}

func TestParseManifest_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"item_name", "image_name", "price"},
		{"Widget", "widget.png", 5},
		{"Gadget"},
		{nil},
		{"Wide", "w.png", 1, "overflow"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	m, err := ParseManifest("catalog.XLSX", buf.Bytes())
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	if len(m.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.Rows))
	}
	if got := m.Rows[0].Value(FieldPrice); got != "5" {
		t.Errorf("price = %q, want %q", got, "5")
	}
	if got := m.Rows[1].Value(FieldImageName); got != "" {
		t.Errorf("padded image_name = %q, want empty", got)
	}
	if m.DroppedRows != 1 {
		t.Errorf("DroppedRows = %d, want 1", m.DroppedRows)
	}
}

func TestParseManifest_UnreadableWorkbook(t *testing.T) {
	_, err := ParseManifest("catalog.xlsx", []byte("not a zip"))

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
}
