package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline orchestrates identity, fetch, existence check and append for one
// (location, date) request per Run. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	keys    SourceKeyBuilder
	fetcher Fetcher
	ledger  Ledger
	logger  *zap.Logger
	now     func() time.Time
	runID   func() string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for stage and outcome lines.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the clock used for fetched_at.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline creates a new Pipeline.
func NewPipeline(keys SourceKeyBuilder, fetcher Fetcher, ledger Ledger, opts ...Option) *Pipeline {
	p := &Pipeline{
		keys:    keys,
		fetcher: fetcher,
		ledger:  ledger,
		logger:  zap.NewNop(),
		now:     time.Now,
		runID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one invocation and returns its terminal outcome.
//
// Stages run strictly in order: BuildIdentity, Fetch, CheckExisting, Write.
// Any failure ends the run as failed; an identity that is already recorded
// ends it as skipped without a write.
func (p *Pipeline) Run(ctx context.Context, location, date string) Outcome {
	out := Outcome{
		Location: location,
		Date:     date,
		RunID:    p.runID(),
	}
	logger := p.logger.With(
		zap.String("run_id", out.RunID),
		zap.String("location", location),
		zap.String("date", date),
	)
	logger.Info("starting ingestion run")

	req, err := NewObservationRequest(location, date)
	if err != nil {
		return p.finish(logger, out, err)
	}
	out.SourceURL = p.keys.Build(req.Location(), req.Date())
	logger = logger.With(zap.String("source_url", out.SourceURL))

	logger.Debug("fetching payload")
	payload, err := p.fetcher.Fetch(ctx, req.Location(), req.Date())
	if err != nil {
		if !isFetchKind(KindOf(err)) {
			err = NewFetchError(KindFetchTransport, err)
		}
		return p.finish(logger, out, err)
	}
	fetchedAt := p.now().UTC().Truncate(time.Microsecond)
	logger.Debug("payload fetched", zap.Int("bytes", len(payload.Raw)), zap.Int("fields", len(payload.Document)))

	exists, err := p.ledger.Exists(ctx, out.SourceURL)
	if err != nil {
		if KindOf(err) != KindLedgerQueryError {
			err = NewQueryError(err)
		}
		return p.finish(logger, out, err)
	}
	if exists {
		out.Status = StatusSkipped
		out.Reason = ReasonAlreadyExists
		return p.finish(logger, out, nil)
	}

	rec := RawRecord{
		SourceURL: out.SourceURL,
		FetchedAt: fetchedAt,
		Payload:   payload.Raw,
	}
	logger.Debug("appending record", zap.String("row_key", rec.RowKey()))
	receipt, err := p.ledger.Append(ctx, rec)
	if err != nil {
		if KindOf(err) != KindLedgerWriteError {
			err = NewWriteError(err)
		}
		return p.finish(logger, out, err)
	}

	out.Status = StatusOK
	out.Receipt = &receipt
	return p.finish(logger, out, nil)
}

// Lookup reports the identity for (location, date) and whether the ledger
// already holds it. It never fetches or writes.
func (p *Pipeline) Lookup(ctx context.Context, location, date string) (string, bool, error) {
	req, err := NewObservationRequest(location, date)
	if err != nil {
		return "", false, err
	}
	sourceURL := p.keys.Build(req.Location(), req.Date())
	exists, err := p.ledger.Exists(ctx, sourceURL)
	if err != nil {
		if KindOf(err) != KindLedgerQueryError {
			err = NewQueryError(err)
		}
		return sourceURL, false, err
	}
	return sourceURL, exists, nil
}

func (p *Pipeline) finish(logger *zap.Logger, out Outcome, err error) Outcome {
	if err != nil {
		out.Status = StatusFailed
		out.Kind = KindOf(err)
		out.Reason = err.Error()
		logger.Error("ingestion failed",
			zap.String("status", string(out.Status)),
			zap.String("kind", string(out.Kind)),
			zap.Error(err),
		)
		return out
	}

	fields := []zap.Field{zap.String("status", string(out.Status))}
	if out.Reason != "" {
		fields = append(fields, zap.String("reason", out.Reason))
	}
	if out.Receipt != nil {
		fields = append(fields,
			zap.String("row_key", out.Receipt.RowKey),
			zap.String("destination", out.Receipt.Destination),
			zap.Bool("deduplicated", out.Receipt.Deduplicated),
		)
	}
	logger.Info("ingestion complete", fields...)
	return out
}

func isFetchKind(k Kind) bool {
	switch k {
	case KindFetchTimeout, KindFetchTransport, KindFetchHTTPError, KindFetchDecodeError, KindFetchEmptyPayload:
		return true
	}
	return false
}
