package rows

import (
	"strings"
	"testing"
)

func TestParseDetectsHeaderBySynonym(t *testing.T) {
	cells := [][]string{
		{"Classification", "Family", "Rank Points"},
		{"Widgets", "Hardware, Tools", "150"},
	}
	parsed := Parse(cells)
	if len(parsed) != 1 {
		t.Fatalf("expected 1 data row, got %d", len(parsed))
	}
	row := parsed[0]
	if row.Name != "Widgets" {
		t.Fatalf("name = %q", row.Name)
	}
	if row.Families != "Hardware, Tools" {
		t.Fatalf("families = %q", row.Families)
	}
	if row.RankPoints != "150" {
		t.Fatalf("rank points = %q", row.RankPoints)
	}
	if row.ID != nil {
		t.Fatalf("expected nil id, got %d", *row.ID)
	}
}

func TestParseHeaderSynonymsAreCaseAndSpaceInsensitive(t *testing.T) {
	cells := [][]string{
		{"  HEADING NAME ", "reference url"},
		{"Widgets", "https://example.com/widgets"},
	}
	parsed := Parse(cells)
	if len(parsed) != 1 {
		t.Fatalf("expected 1 data row, got %d", len(parsed))
	}
	if parsed[0].ReferenceURL != "https://example.com/widgets" {
		t.Fatalf("reference url = %q", parsed[0].ReferenceURL)
	}
}

func TestParseFallsBackToPositionalMapping(t *testing.T) {
	// No recognized name header: the first row is data, columns positional.
	cells := [][]string{
		{"42", "Widgets", "Hardware"},
		{"", "Gadgets", ""},
	}
	parsed := Parse(cells)
	if len(parsed) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(parsed))
	}
	if parsed[0].ID == nil || *parsed[0].ID != 42 {
		t.Fatalf("id = %v", parsed[0].ID)
	}
	if parsed[0].Name != "Widgets" || parsed[0].Families != "Hardware" {
		t.Fatalf("row 0 = %+v", parsed[0])
	}
	if parsed[1].ID != nil {
		t.Fatalf("expected nil id on row 1")
	}
	if parsed[1].Name != "Gadgets" {
		t.Fatalf("row 1 name = %q", parsed[1].Name)
	}
}

func TestParseIgnoresNonNumericIDs(t *testing.T) {
	cells := [][]string{
		{"id", "name"},
		{"n/a", "Widgets"},
		{"-5", "Gadgets"},
	}
	parsed := Parse(cells)
	for i, row := range parsed {
		if row.ID != nil {
			t.Fatalf("row %d: expected nil id, got %d", i, *row.ID)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw      string
		fallback string
		want     string
	}{
		{"Existing", "additional", "existing"},
		{" RANKED ", "additional", "ranked"},
		{"additional", "existing", "additional"},
		{"new", "additional", "additional"},
		{"", "additional", "additional"},
	}
	for _, tc := range cases {
		if got := NormalizeStatus(tc.raw, tc.fallback); got != tc.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestReadCSVAllowsRaggedRows(t *testing.T) {
	input := "heading,family,rank points\nWidgets,Hardware\nGadgets,Tools,150\n"
	cells, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(cells) != 3 {
		t.Fatalf("expected 3 raw rows, got %d", len(cells))
	}
	parsed := Parse(cells)
	if len(parsed) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(parsed))
	}
	if parsed[0].RankPoints != "" {
		t.Fatalf("short row rank points = %q", parsed[0].RankPoints)
	}
	if parsed[1].RankPoints != "150" {
		t.Fatalf("rank points = %q", parsed[1].RankPoints)
	}
}
