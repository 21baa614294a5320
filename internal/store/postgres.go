package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

// PostgresLedger is a ledger over a PostgreSQL table reached through a pgx pool.
// The table is expected to exist with row_key as its primary key:
//
//	CREATE TABLE <schema>.<table> (
//	    row_key     TEXT PRIMARY KEY,
//	    source_url  TEXT NOT NULL,
//	    fetched_at  TIMESTAMPTZ NOT NULL,
//	    payload     JSONB NOT NULL,
//	    inserted_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX ON <schema>.<table> (source_url);
type PostgresLedger struct {
	pool *pgxpool.Pool
	dest string
	now  func() time.Time

	existsSQL string
	insertSQL string
}

// NewPostgres creates a PostgresLedger backed by a pgx pool. schema may be empty.
func NewPostgres(ctx context.Context, databaseURL, schema, table string) (*PostgresLedger, error) {
	qualified, err := quoteIdent(table)
	if err != nil {
		return nil, fmt.Errorf("ledger table: %w", err)
	}
	dest := table
	if schema != "" {
		qs, err := quoteIdent(schema)
		if err != nil {
			return nil, fmt.Errorf("ledger schema: %w", err)
		}
		qualified = qs + "." + qualified
		dest = schema + "." + table
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresLedger{
		pool: pool,
		dest: "postgres:" + dest,
		now:  time.Now,
		existsSQL: fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE source_url = $1`, qualified),
		insertSQL: fmt.Sprintf(`INSERT INTO %s (row_key, source_url, fetched_at, payload, inserted_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (row_key) DO NOTHING`, qualified),
	}, nil
}

// Exists counts rows carrying sourceURL.
func (s *PostgresLedger) Exists(ctx context.Context, sourceURL string) (bool, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, s.existsSQL, sourceURL).Scan(&n); err != nil {
		return false, ingest.NewQueryError(fmt.Errorf("%s exists: %w", s.dest, err))
	}
	return n > 0, nil
}

// Append inserts rec in a single statement keyed by its row key.
func (s *PostgresLedger) Append(ctx context.Context, rec ingest.RawRecord) (ingest.InsertReceipt, error) {
	if err := validateRecord(rec); err != nil {
		return ingest.InsertReceipt{}, err
	}

	key := rec.RowKey()
	insertedAt := s.now().UTC()
	tag, err := s.pool.Exec(ctx, s.insertSQL,
		key,
		rec.SourceURL,
		rec.FetchedAt.UTC(),
		string(rec.Payload),
		insertedAt,
	)
	if err != nil {
		return ingest.InsertReceipt{}, ingest.NewWriteError(fmt.Errorf("%s insert: %w", s.dest, err))
	}

	return ingest.InsertReceipt{
		RowKey:       key,
		Destination:  s.dest,
		InsertedAt:   insertedAt,
		Deduplicated: tag.RowsAffected() == 0,
	}, nil
}

// Close releases the pool resources.
func (s *PostgresLedger) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
