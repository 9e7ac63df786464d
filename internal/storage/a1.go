package storage

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// A1Range is a parsed A1-notation range. EndCol and EndRow are zero when
// the range is open in that direction.
type A1Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseA1Range parses ranges such as "Sheet1!A:G", "'My Sheet'!A2:G100",
// "A1:G" or a bare sheet name. A single cell is an open-ended anchor.
func ParseA1Range(rng string) (A1Range, error) {
	r := A1Range{Sheet: "Sheet1", StartCol: 1, StartRow: 1}

	ref := rng
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		r.Sheet = strings.Trim(rng[:i], "'")
		ref = rng[i+1:]
	} else if rng == "" {
		return r, nil
	} else if _, _, err := parseEndpoint(strings.SplitN(rng, ":", 2)[0]); err != nil {
		// Not a cell reference, so a bare sheet name.
		r.Sheet = strings.Trim(rng, "'")
		return r, nil
	}
	if r.Sheet == "" {
		return A1Range{}, fmt.Errorf("invalid range %q: empty sheet name", rng)
	}
	if ref == "" {
		return r, nil
	}

	parts := strings.SplitN(ref, ":", 2)
	col, row, err := parseEndpoint(parts[0])
	if err != nil {
		return A1Range{}, fmt.Errorf("invalid range %q: %w", rng, err)
	}
	r.StartCol = col
	if row > 0 {
		r.StartRow = row
	}

	if len(parts) == 2 {
		col, row, err := parseEndpoint(parts[1])
		if err != nil {
			return A1Range{}, fmt.Errorf("invalid range %q: %w", rng, err)
		}
		if col < r.StartCol || (row > 0 && row < r.StartRow) {
			return A1Range{}, fmt.Errorf("invalid range %q: end before start", rng)
		}
		r.EndCol, r.EndRow = col, row
	}

	return r, nil
}

// parseEndpoint accepts "G", "G7" or "$G$7"; row is zero for a bare column.
func parseEndpoint(ref string) (col, row int, err error) {
	ref = strings.ReplaceAll(ref, "$", "")
	if ref == "" {
		return 0, 0, fmt.Errorf("empty cell reference")
	}
	if strings.IndexAny(ref, "0123456789") < 0 {
		col, err = excelize.ColumnNameToNumber(ref)
		return col, 0, err
	}
	return excelize.CellNameToCoordinates(ref)
}

// Width is the number of columns covered, or zero when open-ended.
func (r A1Range) Width() int {
	if r.EndCol == 0 {
		return 0
	}
	return r.EndCol - r.StartCol + 1
}

// Contains reports whether the 1-based row lies inside the range.
func (r A1Range) Contains(row int) bool {
	return row >= r.StartRow && (r.EndRow == 0 || row <= r.EndRow)
}

// clip returns the part of a full sheet row that lies inside the range.
func (r A1Range) clip(row []string) []string {
	if len(row) < r.StartCol {
		return []string{}
	}
	row = row[r.StartCol-1:]
	if w := r.Width(); w > 0 && len(row) > w {
		row = row[:w]
	}
	out := make([]string, len(row))
	copy(out, row)
	return out
}
