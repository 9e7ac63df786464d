package table

import (
	"reflect"
	"testing"

	"github.com/valpere/listingsync/internal/sanitizer"
)

func TestNewRecord(t *testing.T) {
	fields := sanitizer.Default().Sanitize("The.Thing.2011.1080p.BluRay.REMUX.mkv")
	rec := NewRecord("The.Thing.2011.1080p.BluRay.REMUX.mkv", "magnet:abc", "12.3 GB", fields)

	want := []string{"The.Thing.2011.1080p.BluRay.REMUX.mkv", "magnet:abc", "12.3 GB", "The Thing", "2011", "1080p", "BluRay,REMUX"}
	if got := rec.Row(); !reflect.DeepEqual(got, want) {
		t.Errorf("Row() = %q, want %q", got, want)
	}
	if rec.Key() != "The.Thing.2011.1080p.BluRay.REMUX.mkv" {
		t.Errorf("Key() = %q", rec.Key())
	}
}

func TestNewRecordNilFields(t *testing.T) {
	rec := NewRecord("", "u", "1 MB", nil)
	if rec.SanitizedTitle != "" || rec.Year != "" || rec.Quality != "" || rec.Keywords != "" {
		t.Errorf("expected empty derived columns, got %+v", rec)
	}
}

func TestRowsHeaderLayout(t *testing.T) {
	rows := Rows([]Record{{OriginalTitle: "a"}, {OriginalTitle: "b"}})

	wantHeader := []string{"original-title", "url", "size", "sanitized-title", "year", "quality", "keywords"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Fatalf("header = %q, want %q", rows[0], wantHeader)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != ColumnCount {
			t.Errorf("row %d has %d columns", i, len(row))
		}
	}

	// Mutating the output must not touch the package header.
	rows[0][0] = "changed"
	if Header[0] != "original-title" {
		t.Error("Rows leaked the shared header slice")
	}
}

func TestParseRows(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want []Record
	}{
		{
			name: "empty",
			rows: nil,
			want: []Record{},
		},
		{
			name: "header only",
			rows: [][]string{Header},
			want: []Record{},
		},
		{
			name: "short rows are padded",
			rows: [][]string{
				Header,
				{"A.2001.mkv", "u1", "1 GB", "A", "2001"},
				{"B"},
			},
			want: []Record{
				{OriginalTitle: "A.2001.mkv", URL: "u1", Size: "1 GB", SanitizedTitle: "A", Year: "2001"},
				{OriginalTitle: "B"},
			},
		},
		{
			name: "missing header keeps first row",
			rows: [][]string{{"A", "u"}, {"B", "v"}},
			want: []Record{{OriginalTitle: "A", URL: "u"}, {OriginalTitle: "B", URL: "v"}},
		},
		{
			name: "blank rows kept in place",
			rows: [][]string{Header, {"A"}, {"", ""}, {}, {"C"}},
			want: []Record{{OriginalTitle: "A"}, {}, {}, {OriginalTitle: "C"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRows(tt.rows); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseRows() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsHeader(t *testing.T) {
	if !IsHeader(append(append([]string{}, Header...), "", "")) {
		t.Error("trailing empty cells should be ignored")
	}
	if IsHeader([]string{"original-title", "url"}) {
		t.Error("partial header should not match")
	}
}
