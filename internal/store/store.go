// Package store provides the durable ledger backends for raw weather records.
package store

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

// Ledger is an ingest.Ledger that owns resources which must be released.
type Ledger interface {
	ingest.Ledger
	Close() error
}

var (
	errMissingIdentity = errors.New("record has no source_url")
	errMissingFetchAt  = errors.New("record has no fetched_at")

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// validateRecord rejects malformed records before any store call.
func validateRecord(rec ingest.RawRecord) error {
	if rec.SourceURL == "" {
		return ingest.NewWriteError(errMissingIdentity)
	}
	if rec.FetchedAt.IsZero() {
		return ingest.NewWriteError(errMissingFetchAt)
	}
	return nil
}

// quoteIdent validates a SQL identifier and returns it double-quoted.
func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}
