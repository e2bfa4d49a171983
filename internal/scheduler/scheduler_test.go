package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunOnStart(t *testing.T) {
	ctx := context.Background()

	var runs atomic.Int64
	called := make(chan struct{}, 1)
	sweep := func(context.Context) error {
		runs.Add(1)
		select {
		case called <- struct{}{}:
		default:
		}
		return nil
	}

	s := NewScheduler("@every 1h", true, sweep)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run on start")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if runs.Load() < 1 {
		t.Errorf("sweep runs = %d, want at least 1", runs.Load())
	}
}

func TestSchedulerStartTwice(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler("@every 1h", false, func(context.Context) error { return nil })

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(ctx)

	if err := s.Start(ctx); err == nil {
		t.Error("expected error when starting already running scheduler")
	}
}

func TestSchedulerStopNotRunning(t *testing.T) {
	s := NewScheduler("@every 1h", false, func(context.Context) error { return nil })

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSchedulerInvalidSpec(t *testing.T) {
	s := NewScheduler("not a schedule", false, func(context.Context) error { return nil })

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for an unparseable schedule")
	}
	if s.IsRunning() {
		t.Error("scheduler should not be running after a failed start")
	}
}

func TestSchedulerIsRunning(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler("@every 1h", false, func(context.Context) error { return nil })

	if s.IsRunning() {
		t.Error("scheduler should not be running initially")
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler should report running after Start")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.IsRunning() {
		t.Error("scheduler should not report running after Stop")
	}
}
