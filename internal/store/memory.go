package store

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

// MemoryLedger is a concurrency-safe in-memory ledger. Rows live only as long
// as the process; it backs tests and local dry runs.
type MemoryLedger struct {
	mu sync.RWMutex

	// key: row key, value: stored record
	rows map[string]ingest.RawRecord
	// key: source_url, value: number of rows with that identity
	identities map[string]int

	now func() time.Time
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		rows:       make(map[string]ingest.RawRecord),
		identities: make(map[string]int),
		now:        time.Now,
	}
}

// Exists reports whether any row carries sourceURL.
func (s *MemoryLedger) Exists(ctx context.Context, sourceURL string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, ingest.NewQueryError(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.identities[sourceURL] > 0, nil
}

// Append stores rec under its row key. A repeated key is a no-op.
func (s *MemoryLedger) Append(ctx context.Context, rec ingest.RawRecord) (ingest.InsertReceipt, error) {
	if err := validateRecord(rec); err != nil {
		return ingest.InsertReceipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return ingest.InsertReceipt{}, ingest.NewWriteError(err)
	}

	key := rec.RowKey()
	receipt := ingest.InsertReceipt{
		RowKey:      key,
		Destination: "memory",
		InsertedAt:  s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[key]; ok {
		receipt.Deduplicated = true
		return receipt, nil
	}

	stored := rec
	stored.Payload = append([]byte(nil), rec.Payload...)
	s.rows[key] = stored
	s.identities[rec.SourceURL]++
	return receipt, nil
}

// Len returns the number of stored rows.
func (s *MemoryLedger) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close is a no-op; it lets MemoryLedger be used wherever a closable ledger is expected.
func (s *MemoryLedger) Close() error {
	return nil
}
