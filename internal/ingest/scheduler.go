package ingest

import (
	"context"
	"time"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// Scheduler runs every vendor sync periodically.
type Scheduler struct {
	orchestrator *Orchestrator
	vendors      []domain.POSSystem
	interval     time.Duration
	logger       *logger.Logger
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler creates a new sync scheduler
func NewScheduler(orchestrator *Orchestrator, vendors []domain.POSSystem, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		vendors:      vendors,
		interval:     interval,
		logger:       log.WithComponent("scheduler"),
	}
}

// Start runs a cycle immediately and then on every tick until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("sync scheduler started")

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("sync scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler and waits for the running cycle to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()
	summaries := s.orchestrator.RunAll(ctx, s.vendors)

	var processed, errored int
	for _, summary := range summaries {
		processed += summary.Processed
		errored += summary.Errored
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("processed", processed).
		Int("errored", errored).
		Msg("sync cycle completed")
}
