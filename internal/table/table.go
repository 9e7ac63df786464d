package table

import "strings"

// ParseRows converts rows read from storage into records. Row 0 is dropped
// when it is the header. Every other row, blank ones included, becomes a
// record in its original position so a rewrite reproduces the stored body.
func ParseRows(rows [][]string) []Record {
	if len(rows) > 0 && IsHeader(rows[0]) {
		rows = rows[1:]
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, FromRow(row))
	}
	return records
}

// Rows renders records as a table with the header as row 0.
func Rows(records []Record) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, append([]string(nil), Header...))
	for _, rec := range records {
		rows = append(rows, rec.Row())
	}
	return rows
}

// IsHeader reports whether row matches Header, ignoring surrounding
// whitespace and trailing empty cells.
func IsHeader(row []string) bool {
	for len(row) > 0 && strings.TrimSpace(row[len(row)-1]) == "" {
		row = row[:len(row)-1]
	}
	if len(row) != len(Header) {
		return false
	}
	for i, name := range Header {
		if strings.TrimSpace(row[i]) != name {
			return false
		}
	}
	return true
}
