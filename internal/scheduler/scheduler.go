// Package scheduler runs the periodic sweeps: batch materialization of
// overdue occurrences and reminder delivery.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweep is one scheduled pass over the store.
type Sweep func(ctx context.Context) error

// Scheduler invokes a sweep on a cron schedule. The schedule uses the
// standard five-field cron syntax or a descriptor like "@every 1h".
type Scheduler struct {
	spec       string
	runOnStart bool
	sweep      Sweep

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. With runOnStart the first sweep
// fires immediately instead of waiting for the first tick.
func NewScheduler(spec string, runOnStart bool, sweep Sweep) *Scheduler {
	return &Scheduler{
		spec:       spec,
		runOnStart: runOnStart,
		sweep:      sweep,
	}
}

// Start begins ticking. Returns an error if already running or if the
// schedule spec does not parse.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}

	// Sweeps outlive the Start call; they stop when Stop cancels this.
	base, cancel := context.WithCancel(context.Background())

	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.runSweep(base) }); err != nil {
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("parse schedule %q: %w", s.spec, err)
	}

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	c.Start()

	if s.runOnStart {
		go s.runSweep(base)
	}

	slog.InfoContext(ctx, "Scheduler started",
		"schedule", s.spec,
		"run_on_start", s.runOnStart)

	return nil
}

// Stop stops ticking and waits for an in-flight sweep to finish, or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	stopped := c.Stop()

	select {
	case <-stopped.Done():
		slog.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}

	start := time.Now()
	slog.InfoContext(ctx, "Scheduled sweep starting")

	if err := s.sweep(ctx); err != nil {
		slog.ErrorContext(ctx, "Scheduled sweep failed",
			"error", err,
			"duration", time.Since(start))
		return
	}

	slog.InfoContext(ctx, "Scheduled sweep complete", "duration", time.Since(start))
}
