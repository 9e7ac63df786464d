package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/listingsync/internal/utils"
)

// ExcelBackend stores the table in a local .xlsx workbook. The sheet id is
// the workbook path. Every call opens and saves the file.
type ExcelBackend struct {
	logger utils.Logger
	mu     sync.Mutex
}

// NewExcelBackend creates an Excel backend.
func NewExcelBackend(logger utils.Logger) *ExcelBackend {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &ExcelBackend{logger: logger}
}

// ReadRange implements Backend. A missing workbook or sheet reads as empty.
func (b *ExcelBackend) ReadRange(ctx context.Context, sheetID, rng string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := ParseA1Range(rng)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := excelize.OpenFile(sheetID)
	if errors.Is(err, os.ErrNotExist) {
		return [][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", sheetID, err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(r.Sheet); err != nil || idx < 0 {
		return [][]string{}, nil
	}

	all, err := f.GetRows(r.Sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", r.Sheet, err)
	}

	rows := make([][]string, 0, len(all))
	for i, row := range all {
		if !r.Contains(i + 1) {
			continue
		}
		rows = append(rows, r.clip(row))
	}

	// Cleared cells come back as empty strings; drop the blank tail.
	for len(rows) > 0 && isBlank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}

	b.logger.Debugf("read %d rows from %s!%s", len(rows), sheetID, rng)
	return rows, nil
}

// ClearRange implements Backend.
func (b *ExcelBackend) ClearRange(ctx context.Context, sheetID, rng string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := ParseA1Range(rng)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := excelize.OpenFile(sheetID)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", sheetID, err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(r.Sheet); err != nil || idx < 0 {
		return nil
	}

	all, err := f.GetRows(r.Sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", r.Sheet, err)
	}

	for i, row := range all {
		rowNum := i + 1
		if !r.Contains(rowNum) {
			continue
		}
		last := len(row)
		if r.EndCol > 0 && r.EndCol < last {
			last = r.EndCol
		}
		for col := r.StartCol; col <= last; col++ {
			cell, err := excelize.CoordinatesToCellName(col, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(r.Sheet, cell, nil); err != nil {
				return fmt.Errorf("failed to clear %s: %w", cell, err)
			}
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", sheetID, err)
	}
	return nil
}

// WriteRange implements Backend. Rows are written from the range's top-left
// cell; the workbook and sheet are created when missing.
func (b *ExcelBackend) WriteRange(ctx context.Context, sheetID, rng string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := ParseA1Range(rng)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := openOrCreateWorkbook(sheetID)
	if err != nil {
		return err
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(r.Sheet)
	if err != nil {
		return fmt.Errorf("failed to look up sheet %s: %w", r.Sheet, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(r.Sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", r.Sheet, err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(r.StartCol, r.StartRow+i)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(r.Sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if dir := filepath.Dir(sheetID); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create workbook directory: %w", err)
		}
	}
	if err := f.SaveAs(sheetID); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", sheetID, err)
	}

	b.logger.Debugf("wrote %d rows to %s!%s", len(rows), sheetID, rng)
	return nil
}

// Close implements Backend.
func (b *ExcelBackend) Close() error { return nil }

func openOrCreateWorkbook(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return f, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
