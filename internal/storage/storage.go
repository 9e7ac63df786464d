// Package storage provides range-addressed tabular backends for the
// persisted listing table.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/listingsync/internal/utils"
)

// Backend types
const (
	TypeSheets   = "sheets"
	TypeExcel    = "excel"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// DefaultRange addresses the seven table columns of the first sheet.
const DefaultRange = "Sheet1!A:G"

// ErrAuthorization marks failures of the credential provider.
var ErrAuthorization = errors.New("storage authorization failed")

// Backend is a range-addressed table store. Rows are sequences of string
// cells; callers own the header row.
type Backend interface {
	ReadRange(ctx context.Context, sheetID, rng string) ([][]string, error)
	ClearRange(ctx context.Context, sheetID, rng string) error
	WriteRange(ctx context.Context, sheetID, rng string, rows [][]string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Type    string `yaml:"type" json:"type"`
	SheetID string `yaml:"sheet_id" json:"sheet_id"`
	Range   string `yaml:"range" json:"range"`

	// Sheets credentials. CredentialsJSON takes precedence over the file.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	CredentialsJSON string `yaml:"credentials_json" json:"-"`

	// SQL backends
	DSN   string `yaml:"dsn" json:"-"`
	Table string `yaml:"table" json:"table"`
}

// Validate checks the fields required by the selected backend.
func (c Config) Validate() error {
	var problems []string
	switch c.Type {
	case TypeSheets:
		if c.SheetID == "" {
			problems = append(problems, "sheet_id is required for sheets storage")
		}
	case TypeExcel:
		if c.SheetID == "" {
			problems = append(problems, "sheet_id (workbook path) is required for excel storage")
		}
	case TypeSQLite, TypePostgres, TypeMySQL:
		if c.DSN == "" {
			problems = append(problems, fmt.Sprintf("dsn is required for %s storage", c.Type))
		}
		if c.Table != "" && !identifierPattern.MatchString(c.Table) {
			problems = append(problems, fmt.Sprintf("invalid table name %q", c.Table))
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported storage type %q", c.Type))
	}
	if c.Range != "" {
		if _, err := ParseA1Range(c.Range); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid storage config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Open acquires credentials where the backend needs them and returns a
// ready backend. Credential failures wrap ErrAuthorization.
func Open(ctx context.Context, config Config, logger utils.Logger) (Backend, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	logger = logger.WithField("storage", config.Type)

	switch config.Type {
	case TypeSheets:
		auth := &ServiceAccountAuthorizer{
			CredentialsFile: config.CredentialsFile,
			CredentialsJSON: config.CredentialsJSON,
		}
		return NewSheetsBackend(ctx, auth, logger)
	case TypeExcel:
		return NewExcelBackend(logger), nil
	case TypeSQLite, TypePostgres, TypeMySQL:
		return NewSQLBackend(ctx, SQLOptions{Dialect: config.Type, DSN: config.DSN, Table: config.Table}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", config.Type)
	}
}
