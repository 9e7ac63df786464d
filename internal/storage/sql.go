package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"github.com/mattn/go-sqlite3"

	"github.com/valpere/listingsync/internal/utils"
)

// DefaultTable holds the rows of every range stored in a SQL database.
const DefaultTable = "listing_rows"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLOptions configures a SQL backend.
type SQLOptions struct {
	Dialect string
	DSN     string
	Table   string
}

// dialect holds the statements that differ between databases.
type dialect struct {
	driver      string
	createTable string
	upsert      string
	placeholder func(n int) string
}

var dialects = map[string]dialect{
	TypeSQLite: {
		driver: "sqlite3",
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			sheet_id TEXT NOT NULL,
			range_name TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			cells TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (sheet_id, range_name, row_index)
		)`,
		upsert:      `INSERT OR REPLACE INTO %s (sheet_id, range_name, row_index, cells) VALUES (?, ?, ?, ?)`,
		placeholder: func(int) string { return "?" },
	},
	TypePostgres: {
		driver: "postgres",
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			sheet_id TEXT NOT NULL,
			range_name TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			cells TEXT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (sheet_id, range_name, row_index)
		)`,
		upsert: `INSERT INTO %s (sheet_id, range_name, row_index, cells) VALUES ($1, $2, $3, $4)
			ON CONFLICT (sheet_id, range_name, row_index) DO UPDATE SET cells = EXCLUDED.cells, updated_at = NOW()`,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	},
	TypeMySQL: {
		driver: "mysql",
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			sheet_id VARCHAR(255) NOT NULL,
			range_name VARCHAR(255) NOT NULL,
			row_index INT NOT NULL,
			cells LONGTEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (sheet_id, range_name, row_index)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		upsert: `INSERT INTO %s (sheet_id, range_name, row_index, cells) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE cells = VALUES(cells)`,
		placeholder: func(int) string { return "?" },
	},
}

// SQLBackend stores each table row as a JSON array of cells keyed by
// sheet id, range and row index.
type SQLBackend struct {
	db      *sql.DB
	dialect dialect
	table   string
	logger  utils.Logger
}

// NewSQLBackend connects and creates the rows table when missing.
func NewSQLBackend(ctx context.Context, options SQLOptions, logger utils.Logger) (*SQLBackend, error) {
	d, ok := dialects[options.Dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL dialect %q", options.Dialect)
	}
	if options.DSN == "" {
		return nil, fmt.Errorf("%s DSN is required", options.Dialect)
	}
	if options.Table == "" {
		options.Table = DefaultTable
	}
	if !identifierPattern.MatchString(options.Table) {
		return nil, fmt.Errorf("invalid table name %q", options.Table)
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	dsn := options.DSN
	if options.Dialect == TypeSQLite {
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", options.Dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", options.Dialect, err)
	}
	if options.Dialect == TypeSQLite {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(d.createTable, options.Table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table '%s': %w", options.Table, err)
	}

	return &SQLBackend{db: db, dialect: d, table: options.Table, logger: logger}, nil
}

// sqliteDSN creates the database directory and applies connection defaults
// unless the DSN carries its own parameters.
func sqliteDSN(dsn string) (string, error) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	return dsn, nil
}

// ReadRange implements Backend.
func (b *SQLBackend) ReadRange(ctx context.Context, sheetID, rng string) ([][]string, error) {
	query := fmt.Sprintf("SELECT cells FROM %s WHERE sheet_id = %s AND range_name = %s ORDER BY row_index",
		b.table, b.dialect.placeholder(1), b.dialect.placeholder(2))

	result, err := b.db.QueryContext(ctx, query, sheetID, rng)
	if err != nil {
		return nil, queryError(fmt.Sprintf("failed to read range %s", rng), err)
	}
	defer result.Close()

	rows := [][]string{}
	for result.Next() {
		var raw string
		if err := result.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		rows = append(rows, cells)
	}
	if err := result.Err(); err != nil {
		return nil, queryError(fmt.Sprintf("failed to read range %s", rng), err)
	}
	return rows, nil
}

// ClearRange implements Backend.
func (b *SQLBackend) ClearRange(ctx context.Context, sheetID, rng string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE sheet_id = %s AND range_name = %s",
		b.table, b.dialect.placeholder(1), b.dialect.placeholder(2))
	if _, err := b.db.ExecContext(ctx, query, sheetID, rng); err != nil {
		return queryError(fmt.Sprintf("failed to clear range %s", rng), err)
	}
	return nil
}

// WriteRange implements Backend. Rows overwrite the same indexes; rows
// past the written count are left untouched, as with a sheet update.
func (b *SQLBackend) WriteRange(ctx context.Context, sheetID, rng string, rows [][]string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return queryError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(b.dialect.upsert, b.table))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if row == nil {
			row = []string{}
		}
		cells, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, sheetID, rng, i, string(cells)); err != nil {
			return queryError(fmt.Sprintf("failed to write row %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return queryError("failed to commit", err)
	}

	b.logger.Debugf("wrote %d rows to %s/%s", len(rows), sheetID, rng)
	return nil
}

// Close implements Backend.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// queryError wraps a database failure. Dropped connections and a busy or
// locked sqlite file are marked retryable.
func queryError(message string, err error) error {
	retryable := errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked) {
		retryable = true
	}

	return utils.NewError(utils.ErrCodeStorageFailed, message).
		WithCause(err).
		WithRetryable(retryable).
		Build()
}
