// Package table defines the persisted record and its fixed 7-column row
// layout.
package table

import (
	"github.com/valpere/listingsync/internal/sanitizer"
)

// Header is row 0 of every persisted table.
var Header = []string{"original-title", "url", "size", "sanitized-title", "year", "quality", "keywords"}

// ColumnCount is the width of every persisted row.
const ColumnCount = 7

// Record is one persisted listing entry. OriginalTitle is the dedup key.
type Record struct {
	OriginalTitle  string `json:"original_title"`
	URL            string `json:"url"`
	Size           string `json:"size"`
	SanitizedTitle string `json:"sanitized_title"`
	Year           string `json:"year"`
	Quality        string `json:"quality"`
	Keywords       string `json:"keywords"`
}

// Key returns the dedup key.
func (r Record) Key() string {
	return r.OriginalTitle
}

// NewRecord combines a raw listing with its sanitized fields. A nil fields
// value (empty title) produces empty derived columns.
func NewRecord(title, url, size string, fields *sanitizer.Fields) Record {
	rec := Record{
		OriginalTitle: title,
		URL:           url,
		Size:          size,
	}
	if fields != nil {
		rec.SanitizedTitle = fields.Title
		rec.Year = fields.Year
		rec.Quality = fields.Quality
		rec.Keywords = fields.KeywordString()
	}
	return rec
}

// Row renders the record in header column order.
func (r Record) Row() []string {
	return []string{r.OriginalTitle, r.URL, r.Size, r.SanitizedTitle, r.Year, r.Quality, r.Keywords}
}

// FromRow builds a record from a row, treating missing trailing cells as
// empty and ignoring cells past the seventh.
func FromRow(row []string) Record {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return Record{
		OriginalTitle:  cell(0),
		URL:            cell(1),
		Size:           cell(2),
		SanitizedTitle: cell(3),
		Year:           cell(4),
		Quality:        cell(5),
		Keywords:       cell(6),
	}
}
