package ingest

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// rowKeyTimeFormat renders fetched_at inside row keys. Microsecond precision
// matches what the analytical stores keep for TIMESTAMP columns.
const rowKeyTimeFormat = "2006-01-02T15:04:05.000000Z"

var validate = validator.New()

// ObservationRequest identifies one logical unit of provider data.
// Fields are unexported so a request cannot change after construction.
type ObservationRequest struct {
	location string
	date     string
}

type requestFields struct {
	Location string `validate:"required,max=256,excludesall=&#?"`
	Date     string `validate:"required,datetime=2006-01-02"`
}

// NewObservationRequest validates location and date and returns an immutable request.
// Invalid input is reported as an *Error of kind InvalidRequest.
func NewObservationRequest(location, date string) (ObservationRequest, error) {
	if err := validate.Struct(requestFields{Location: location, Date: date}); err != nil {
		return ObservationRequest{}, newError(KindInvalidRequest, err)
	}
	return ObservationRequest{location: location, date: date}, nil
}

func (r ObservationRequest) Location() string { return r.location }
func (r ObservationRequest) Date() string     { return r.date }

// Payload is a fetched provider document. Raw keeps the exact bytes the
// provider returned; those are what gets persisted.
type Payload struct {
	Document map[string]any
	Raw      []byte
}

// RawRecord is an uninterpreted provider payload tagged with its identity and
// the time it was retrieved (not the time it was written).
type RawRecord struct {
	SourceURL string
	FetchedAt time.Time
	Payload   []byte
}

// RowKey is the storage-level dedup key: "<source_url>:<fetched_at>".
func (r RawRecord) RowKey() string {
	return r.SourceURL + ":" + r.FetchedAt.UTC().Format(rowKeyTimeFormat)
}

// InsertReceipt is the ledger's insertion metadata for an appended record.
type InsertReceipt struct {
	RowKey      string    `json:"row_key"`
	Destination string    `json:"destination"`
	InsertedAt  time.Time `json:"inserted_at"`

	// Deduplicated is set when the store already held a row with the same key
	// and the write was absorbed as a no-op.
	Deduplicated bool `json:"deduplicated,omitempty"`
}
