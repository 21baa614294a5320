package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

// BigQueryConfig locates the ledger table.
type BigQueryConfig struct {
	Project  string
	Dataset  string
	Table    string
	Location string
}

// BigQueryLedger is a ledger over a BigQuery table with the columns
// row_key STRING, source_url STRING, fetched_at TIMESTAMP, payload STRING
// and inserted_at TIMESTAMP.
//
// Appends use streaming inserts with the row key as insertId, so BigQuery
// drops a repeated key inside its dedup window.
type BigQueryLedger struct {
	client *bigquery.Client
	cfg    BigQueryConfig
	dest   string
	now    func() time.Time
}

// NewBigQuery creates a BigQueryLedger using application default credentials.
func NewBigQuery(ctx context.Context, cfg BigQueryConfig) (*BigQueryLedger, error) {
	for name, v := range map[string]string{"dataset": cfg.Dataset, "table": cfg.Table} {
		if _, err := quoteIdent(v); err != nil {
			return nil, fmt.Errorf("ledger %s: %w", name, err)
		}
	}

	client, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	return &BigQueryLedger{
		client: client,
		cfg:    cfg,
		dest:   fmt.Sprintf("bigquery:%s.%s.%s", cfg.Project, cfg.Dataset, cfg.Table),
		now:    time.Now,
	}, nil
}

// Exists runs a parameterised count over source_url.
func (s *BigQueryLedger) Exists(ctx context.Context, sourceURL string) (bool, error) {
	q := s.client.Query(fmt.Sprintf(
		"SELECT COUNT(1) AS n FROM `%s.%s.%s` WHERE source_url = @source_url",
		s.cfg.Project, s.cfg.Dataset, s.cfg.Table,
	))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "source_url", Value: sourceURL},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, ingest.NewQueryError(fmt.Errorf("%s exists: %w", s.dest, err))
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	err = it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, ingest.NewQueryError(fmt.Errorf("%s exists: %w", s.dest, err))
	}
	return row.N > 0, nil
}

// Append streams rec as a single row. Per-row insertion errors reported by
// BigQuery are aggregated into one LedgerWriteError.
func (s *BigQueryLedger) Append(ctx context.Context, rec ingest.RawRecord) (ingest.InsertReceipt, error) {
	if err := validateRecord(rec); err != nil {
		return ingest.InsertReceipt{}, err
	}

	row := rawRow{rec: rec, insertedAt: s.now().UTC()}
	inserter := s.client.Dataset(s.cfg.Dataset).Table(s.cfg.Table).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return ingest.InsertReceipt{}, writeErrorFromPut(s.dest, err)
	}

	return ingest.InsertReceipt{
		RowKey:      rec.RowKey(),
		Destination: s.dest,
		InsertedAt:  row.insertedAt,
	}, nil
}

// Close closes the BigQuery client.
func (s *BigQueryLedger) Close() error {
	return s.client.Close()
}

// rawRow is the bigquery.ValueSaver for a RawRecord.
type rawRow struct {
	rec        ingest.RawRecord
	insertedAt time.Time
}

func (r rawRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"row_key":     r.rec.RowKey(),
		"source_url":  r.rec.SourceURL,
		"fetched_at":  r.rec.FetchedAt.UTC(),
		"payload":     string(r.rec.Payload),
		"inserted_at": r.insertedAt,
	}, r.rec.RowKey(), nil
}

// writeErrorFromPut normalises the inserter's two failure channels (a plain
// error for transport problems, PutMultiError for row-level rejections) into
// one LedgerWriteError.
func writeErrorFromPut(dest string, err error) error {
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) {
		return ingest.NewWriteError(fmt.Errorf("%s insert: %w", dest, err))
	}

	var partial []error
	for _, rowErr := range multi {
		for _, e := range rowErr.Errors {
			partial = append(partial, fmt.Errorf("row %d (insertId %s): %w", rowErr.RowIndex, rowErr.InsertID, e))
		}
		if len(rowErr.Errors) == 0 {
			partial = append(partial, fmt.Errorf("row %d (insertId %s): rejected", rowErr.RowIndex, rowErr.InsertID))
		}
	}
	return ingest.NewWriteError(fmt.Errorf("%s insert", dest), partial...)
}
