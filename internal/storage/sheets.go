package storage

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/valpere/listingsync/internal/utils"
)

// SheetsBackend stores the table in a Google Sheets spreadsheet. The sheet
// id is the spreadsheet id and ranges use A1 notation.
type SheetsBackend struct {
	service *sheets.Service
	logger  utils.Logger
}

// NewSheetsBackend authorizes and builds the Sheets service.
func NewSheetsBackend(ctx context.Context, auth Authorizer, logger utils.Logger) (*SheetsBackend, error) {
	client, err := auth.Authorize(ctx, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}
	client.Timeout = 30 * time.Second

	service, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newSheetsBackend(service, logger), nil
}

func newSheetsBackend(service *sheets.Service, logger utils.Logger) *SheetsBackend {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &SheetsBackend{service: service, logger: logger}
}

// ReadRange implements Backend.
func (b *SheetsBackend) ReadRange(ctx context.Context, sheetID, rng string) ([][]string, error) {
	resp, err := b.service.Spreadsheets.Values.Get(sheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", rng, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, values := range resp.Values {
		row := make([]string, len(values))
		for j, v := range values {
			row[j] = fmt.Sprint(v)
		}
		rows[i] = row
	}

	b.logger.Debugf("read %d rows from %s", len(rows), rng)
	return rows, nil
}

// ClearRange implements Backend.
func (b *SheetsBackend) ClearRange(ctx context.Context, sheetID, rng string) error {
	if _, err := b.service.Spreadsheets.Values.Clear(sheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear range %s: %w", rng, err)
	}
	return nil
}

// WriteRange implements Backend. Values are written RAW so titles that
// look like numbers or formulas are stored verbatim.
func (b *SheetsBackend) WriteRange(ctx context.Context, sheetID, rng string, rows [][]string) error {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}

	resp, err := b.service.Spreadsheets.Values.Update(sheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write range %s: %w", rng, err)
	}

	b.logger.Debugf("updated %d rows in %s", resp.UpdatedRows, resp.UpdatedRange)
	return nil
}

// Close implements Backend.
func (b *SheetsBackend) Close() error { return nil }
