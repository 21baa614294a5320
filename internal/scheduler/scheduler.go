package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

// Runner executes one bounded ingestion.
type Runner interface {
	Run(ctx context.Context, location, date string) ingest.Outcome
}

// Scheduler periodically ingests the configured location for the previous day.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	location  string
	schedule  string
	date      func() string
	logger    *zap.Logger

	// ctx is cancelled by Stop so an in-flight run ends with the process.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// New creates a new Scheduler. schedule is a five-field cron expression evaluated
// in UTC; date returns the date each tick ingests.
func New(schedule, location string, date func() string, runner Runner, logger *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:       ctx,
		cancel:    cancel,
		scheduler: s,
		runner:    runner,
		location:  location,
		schedule:  schedule,
		date:      date,
		logger:    logger.Named("scheduler"),
	}
}

// Start schedules the ingestion job and starts the underlying scheduler.
// Overlapping ticks are skipped, not queued.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("no schedule configured; nothing to schedule")
		return nil
	}
	if s.location == "" {
		return errors.New("scheduler: location is required")
	}

	_, err := s.scheduler.Cron(s.schedule).SingletonMode().Do(s.tick)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.String("schedule", s.schedule), zap.String("location", s.location))
	return nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	date := s.date()
	s.logger.Info("running scheduled ingestion", zap.String("location", s.location), zap.String("date", date))

	out := s.runner.Run(s.ctx, s.location, date)
	if !out.Succeeded() {
		s.logger.Warn("scheduled ingestion failed",
			zap.String("run_id", out.RunID),
			zap.String("kind", string(out.Kind)),
			zap.String("reason", out.Reason),
		)
		return
	}
	s.logger.Info("scheduled ingestion finished",
		zap.String("run_id", out.RunID),
		zap.String("status", string(out.Status)),
	)
}

// Stop cancels future jobs and any run in progress, then waits for that run
// to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.inflight.Wait()
}
