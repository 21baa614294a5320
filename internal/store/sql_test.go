package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

func openTestSQLite(t *testing.T) *SQLLedger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	ledger, err := OpenSQL(context.Background(), DriverSQLite, path, "weather_data")
	if err != nil {
		t.Fatalf("OpenSQL failed: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestSQLLedgerCreatesTable(t *testing.T) {
	ledger := openTestSQLite(t)

	var name string
	err := ledger.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='weather_data'").Scan(&name)
	if err != nil {
		t.Fatalf("weather_data table not created: %v", err)
	}
}

func TestSQLLedgerAppendAndExists(t *testing.T) {
	ctx := context.Background()
	ledger := openTestSQLite(t)

	exists, err := ledger.Exists(ctx, stockholmURL)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("expected empty ledger")
	}

	rec := sampleRecord(time.Date(2024, 3, 2, 6, 0, 0, 123000, time.UTC))
	receipt, err := ledger.Append(ctx, rec)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if receipt.RowKey != stockholmURL+":2024-03-02T06:00:00.000123Z" {
		t.Errorf("unexpected row key %q", receipt.RowKey)
	}
	if receipt.Destination != "sqlite:weather_data" {
		t.Errorf("unexpected destination %q", receipt.Destination)
	}
	if receipt.Deduplicated {
		t.Error("first append must not be deduplicated")
	}

	exists, err = ledger.Exists(ctx, stockholmURL)
	if err != nil || !exists {
		t.Fatalf("expected record to exist, got %v, %v", exists, err)
	}

	var payload string
	if err := ledger.db.QueryRow("SELECT payload FROM weather_data WHERE row_key = ?", rec.RowKey()).Scan(&payload); err != nil {
		t.Fatalf("read back payload: %v", err)
	}
	if payload != string(rec.Payload) {
		t.Errorf("payload not stored verbatim: %s", payload)
	}
}

func TestSQLLedgerRepeatedKeyIsNoOp(t *testing.T) {
	ctx := context.Background()
	ledger := openTestSQLite(t)
	rec := sampleRecord(time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC))

	if _, err := ledger.Append(ctx, rec); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	receipt, err := ledger.Append(ctx, rec)
	if err != nil {
		t.Fatalf("repeated Append must not error: %v", err)
	}
	if !receipt.Deduplicated {
		t.Fatal("expected repeated append to be deduplicated")
	}

	var n int
	if err := ledger.db.QueryRow("SELECT COUNT(*) FROM weather_data").Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestSQLLedgerExistsIgnoresOtherIdentities(t *testing.T) {
	ctx := context.Background()
	ledger := openTestSQLite(t)

	other := sampleRecord(time.Now())
	other.SourceURL = "https://api.weatherapi.com/v1/history.json?q=Stockholm&dt=2024-03-02"
	if _, err := ledger.Append(ctx, other); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	exists, err := ledger.Exists(ctx, stockholmURL)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("a different date must not satisfy the existence check")
	}
}

func TestSQLLedgerClosedDatabaseSurfacesErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ledger, err := OpenSQL(context.Background(), DriverSQLite, path, "weather_data")
	if err != nil {
		t.Fatalf("OpenSQL failed: %v", err)
	}
	ledger.Close()

	if _, err := ledger.Exists(context.Background(), stockholmURL); ingest.KindOf(err) != ingest.KindLedgerQueryError {
		t.Fatalf("expected LedgerQueryError, got %v", err)
	}
	if _, err := ledger.Append(context.Background(), sampleRecord(time.Now())); ingest.KindOf(err) != ingest.KindLedgerWriteError {
		t.Fatalf("expected LedgerWriteError, got %v", err)
	}
}

func TestOpenSQLRejectsBadInput(t *testing.T) {
	if _, err := OpenSQL(context.Background(), DriverSQLite, ":memory:", "weather; DROP TABLE x"); err == nil {
		t.Fatal("expected invalid table name to be rejected")
	}
	if _, err := OpenSQL(context.Background(), "mysql", "", "weather_data"); err == nil {
		t.Fatal("expected unsupported driver to be rejected")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ledger, err := Open(context.Background(), Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	if _, ok := ledger.(*MemoryLedger); !ok {
		t.Fatalf("expected *MemoryLedger, got %T", ledger)
	}

	path := filepath.Join(t.TempDir(), "ledger.db")
	ledger, err = Open(context.Background(), Options{Driver: DriverSQLite, DSN: path, Table: "weather_data"})
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	defer ledger.Close()
	if _, ok := ledger.(*SQLLedger); !ok {
		t.Fatalf("expected *SQLLedger, got %T", ledger)
	}

	if _, err := Open(context.Background(), Options{Driver: "cassandra"}); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestSQLLedgerDuckDBRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.duckdb")
	ledger, err := OpenSQL(ctx, DriverDuckDB, path, "weather_data")
	if err != nil {
		t.Fatalf("OpenSQL duckdb failed: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	exists, err := ledger.Exists(ctx, stockholmURL)
	if err != nil || exists {
		t.Fatalf("expected empty ledger, got %v, %v", exists, err)
	}

	rec := sampleRecord(time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC))
	first, err := ledger.Append(ctx, rec)
	if err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	if first.Deduplicated || first.Destination != "duckdb:weather_data" {
		t.Fatalf("unexpected first receipt %+v", first)
	}

	second, err := ledger.Append(ctx, rec)
	if err != nil {
		t.Fatalf("repeated Append must not error: %v", err)
	}
	if !second.Deduplicated {
		t.Fatal("expected repeated append to be deduplicated")
	}

	exists, err = ledger.Exists(ctx, stockholmURL)
	if err != nil || !exists {
		t.Fatalf("expected record to exist, got %v, %v", exists, err)
	}

	var n int
	if err := ledger.db.QueryRow(`SELECT COUNT(*) FROM weather_data`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}
