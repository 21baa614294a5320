package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

// Embedded database/sql drivers supported by SQLLedger.
const (
	DriverSQLite = "sqlite"
	DriverDuckDB = "duckdb"
)

// SQLLedger is a ledger over an embedded database/sql store (SQLite or DuckDB).
// The row key is the primary key, so a repeated append is absorbed by
// ON CONFLICT DO NOTHING.
type SQLLedger struct {
	db     *sql.DB
	driver string
	table  string
	dest   string
	now    func() time.Time

	existsSQL string
	insertSQL string
}

// OpenSQL opens (or creates) an embedded ledger database and ensures the raw
// table exists. For SQLite, ":memory:" selects a shared in-memory database.
func OpenSQL(ctx context.Context, driver, dsn, table string) (*SQLLedger, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return nil, fmt.Errorf("ledger table: %w", err)
	}

	connStr := dsn
	switch driver {
	case DriverSQLite:
		if dsn == ":memory:" {
			connStr = "file::memory:?cache=shared"
		}
	case DriverDuckDB:
		if dsn == ":memory:" {
			connStr = ""
		}
	default:
		return nil, fmt.Errorf("unsupported embedded driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection serialises writers and keeps in-memory databases coherent.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQLLedger{
		db:     db,
		driver: driver,
		table:  quoted,
		dest:   fmt.Sprintf("%s:%s", driver, table),
		now:    time.Now,
		existsSQL: fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE source_url = ?`, quoted),
		insertSQL: fmt.Sprintf(
			`INSERT INTO %s (row_key, source_url, fetched_at, payload, inserted_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (row_key) DO NOTHING`, quoted),
	}

	if err := s.createTables(ctx, table); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLLedger) createTables(ctx context.Context, table string) error {
	if s.driver == DriverSQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			return fmt.Errorf("set busy_timeout: %w", err)
		}
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	row_key TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	payload TEXT NOT NULL,
	inserted_at TIMESTAMP NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_%s_source_url" ON %s (source_url)`, table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

// Exists counts rows carrying sourceURL.
func (s *SQLLedger) Exists(ctx context.Context, sourceURL string) (bool, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.existsSQL, sourceURL).Scan(&n); err != nil {
		return false, ingest.NewQueryError(fmt.Errorf("%s exists: %w", s.dest, err))
	}
	return n > 0, nil
}

// Append inserts rec in a single statement keyed by its row key.
func (s *SQLLedger) Append(ctx context.Context, rec ingest.RawRecord) (ingest.InsertReceipt, error) {
	if err := validateRecord(rec); err != nil {
		return ingest.InsertReceipt{}, err
	}

	key := rec.RowKey()
	insertedAt := s.now().UTC()
	result, err := s.db.ExecContext(ctx, s.insertSQL,
		key,
		rec.SourceURL,
		rec.FetchedAt.UTC(),
		string(rec.Payload),
		insertedAt,
	)
	if err != nil {
		return ingest.InsertReceipt{}, ingest.NewWriteError(fmt.Errorf("%s insert: %w", s.dest, err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ingest.InsertReceipt{}, ingest.NewWriteError(fmt.Errorf("%s rows affected: %w", s.dest, err))
	}

	return ingest.InsertReceipt{
		RowKey:       key,
		Destination:  s.dest,
		InsertedAt:   insertedAt,
		Deduplicated: affected == 0,
	}, nil
}

// Close closes the database connection.
func (s *SQLLedger) Close() error {
	return s.db.Close()
}
