package ingest

import (
	"context"
)

// Fetcher retrieves the raw observation payload for a (location, date) pair.
// Implementations issue exactly one outbound call and never retry; failures
// are returned as *Error with a Fetch* kind.
type Fetcher interface {
	Fetch(ctx context.Context, location, date string) (Payload, error)
}

// Ledger is the contract every durable store backend must satisfy.
type Ledger interface {
	// Exists reports whether any record with the given identity is stored.
	Exists(ctx context.Context, sourceURL string) (bool, error)

	// Append writes rec keyed by rec.RowKey(). A repeated key must be absorbed
	// by the store and reported through InsertReceipt.Deduplicated.
	Append(ctx context.Context, rec RawRecord) (InsertReceipt, error)
}
