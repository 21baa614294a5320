package store

import (
	"context"
	"fmt"
)

// Ledger drivers selectable by configuration.
const (
	DriverBigQuery = "bigquery"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and locates a ledger backend.
type Options struct {
	Driver   string
	DSN      string
	Project  string
	Dataset  string
	Table    string
	Location string
}

// Open returns the ledger backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Ledger, error) {
	var (
		ledger Ledger
		err    error
	)
	switch opts.Driver {
	case DriverBigQuery:
		ledger, err = NewBigQuery(ctx, BigQueryConfig{
			Project:  opts.Project,
			Dataset:  opts.Dataset,
			Table:    opts.Table,
			Location: opts.Location,
		})
	case DriverPostgres:
		ledger, err = NewPostgres(ctx, opts.DSN, opts.Dataset, opts.Table)
	case DriverSQLite, DriverDuckDB:
		ledger, err = OpenSQL(ctx, opts.Driver, opts.DSN, opts.Table)
	case DriverMemory:
		ledger = NewMemoryLedger()
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return ledger, nil
}
