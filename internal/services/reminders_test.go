package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/storage"
)

type captureSink struct {
	mu      sync.Mutex
	err     error
	notices []core.ReminderNotice
}

func (s *captureSink) DeliverReminder(_ context.Context, n core.ReminderNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.notices = append(s.notices, n)
	return nil
}

func TestReminderSweep(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	sink := &captureSink{}
	svc := NewReminderService(store, 7, sink)

	owner := uuid.New()
	overdue := monthlyTemplate(owner, firstOfMonth(0))
	dueSoon := yearlyTemplate(owner, core.Today().AddDays(2))
	upcoming := yearlyTemplate(owner, core.Today().AddDays(30))
	for _, tmpl := range []core.Template{overdue, dueSoon, upcoming} {
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate() error = %v", err)
		}
	}

	sent, err := svc.SweepReminders(ctx)
	if err != nil {
		t.Fatalf("SweepReminders() error = %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}

	byTemplate := make(map[uuid.UUID]core.ReminderNotice)
	for _, n := range sink.notices {
		byTemplate[n.TemplateID] = n
	}

	n, ok := byTemplate[overdue.ID]
	if !ok {
		t.Fatal("no notice for the overdue template")
	}
	if n.Status != core.StatusOverdue || !n.DueDate.Equal(firstOfMonth(0)) {
		t.Errorf("overdue notice = %v on %v, want overdue on %v", n.Status, n.DueDate, firstOfMonth(0))
	}
	if !n.Amount.Equal(overdue.Amount) || n.Currency != overdue.Currency {
		t.Errorf("notice amount = %v %s, want %v %s", n.Amount, n.Currency, overdue.Amount, overdue.Currency)
	}

	n, ok = byTemplate[dueSoon.ID]
	if !ok {
		t.Fatal("no notice for the due-soon template")
	}
	if n.Status != core.StatusDueSoon || !n.DueDate.Equal(core.Today().AddDays(2)) {
		t.Errorf("due-soon notice = %v on %v, want due_soon on %v", n.Status, n.DueDate, core.Today().AddDays(2))
	}

	if _, ok := byTemplate[upcoming.ID]; ok {
		t.Error("upcoming template got a notice, want none")
	}

	// Repeated sweeps stay quiet until the next occurrence comes due.
	sent, err = svc.SweepReminders(ctx)
	if err != nil {
		t.Fatalf("SweepReminders() second run error = %v", err)
	}
	if sent != 0 {
		t.Errorf("second sweep sent = %d, want 0", sent)
	}
	if len(sink.notices) != 2 {
		t.Errorf("notices = %d, want still 2", len(sink.notices))
	}
}

func TestReminderSweepRetriesAfterSinkFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	tmpl := monthlyTemplate(uuid.New(), firstOfMonth(0))
	if err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}

	broken := &captureSink{err: errors.New("smtp unreachable")}
	sent, err := NewReminderService(store, 7, broken).SweepReminders(ctx)
	if err != nil {
		t.Fatalf("SweepReminders() error = %v", err)
	}
	if sent != 0 {
		t.Errorf("sent through broken sink = %d, want 0", sent)
	}

	// Delivery failed, so nothing was marked and the next sweep retries.
	working := &captureSink{}
	sent, err = NewReminderService(store, 7, working).SweepReminders(ctx)
	if err != nil {
		t.Fatalf("SweepReminders() retry error = %v", err)
	}
	if sent != 1 || len(working.notices) != 1 {
		t.Errorf("retry sent = %d with %d notices, want 1/1", sent, len(working.notices))
	}
}

func TestReminderSweepWithoutSinks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	tmpl := monthlyTemplate(uuid.New(), firstOfMonth(0))
	if err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}

	sent, err := NewReminderService(store, 7, nil).SweepReminders(ctx)
	if err != nil {
		t.Fatalf("SweepReminders() error = %v", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0 with no sinks", sent)
	}
}
