package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/storage"
)

func TestExpenseServiceListRange(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewMaterializer(store, nil)
	svc := NewExpenseService(store, 7)

	owner := uuid.New()
	tmpl := monthlyTemplate(owner, firstOfMonth(2))
	if err := store.CreateTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.MaterializeNext(ctx, tmpl.ID); err != nil {
			t.Fatalf("MaterializeNext() error = %v", err)
		}
	}

	all, err := svc.List(ctx, owner, nil, nil)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() = %d expenses, want 3", len(all))
	}

	from := firstOfMonth(1)
	recent, err := svc.List(ctx, owner, &from, nil)
	if err != nil {
		t.Fatalf("List(from) error = %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("List(from %v) = %d expenses, want 2", from, len(recent))
	}

	to := firstOfMonth(1)
	early, err := svc.List(ctx, owner, nil, &to)
	if err != nil {
		t.Fatalf("List(to) error = %v", err)
	}
	if len(early) != 2 {
		t.Errorf("List(to %v) = %d expenses, want 2", to, len(early))
	}
}

func TestExpenseServiceMonthSummary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewMaterializer(store, nil)
	p := NewProcessor(store, m, 7, 2)
	svc := NewExpenseService(store, 7)

	owner := uuid.New()
	rent := monthlyTemplate(owner, firstOfMonth(2))
	end := firstOfMonth(0)
	rent.EndDate = &end
	insurance := yearlyTemplate(owner, core.Today().AddDays(2))
	for _, tmpl := range []core.Template{rent, insurance} {
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate() error = %v", err)
		}
	}

	if _, err := p.ProcessAllDue(ctx, owner); err != nil {
		t.Fatalf("ProcessAllDue() error = %v", err)
	}

	today := core.Today()
	summary, err := svc.MonthSummary(ctx, owner, today.Year(), today.Month())
	if err != nil {
		t.Fatalf("MonthSummary() error = %v", err)
	}

	if summary.Year != today.Year() || summary.Month != today.Month() {
		t.Errorf("summary period = %d-%d, want %d-%d", summary.Year, summary.Month, today.Year(), today.Month())
	}
	if summary.ExpenseCount != 1 {
		t.Errorf("expense count = %d, want 1; only this month's occurrence belongs here", summary.ExpenseCount)
	}
	if len(summary.Totals) != 1 || summary.Totals[0].Currency != "EUR" || !summary.Totals[0].Total.Equal(rent.Amount) {
		t.Errorf("totals = %v, want 1200.50 EUR", summary.Totals)
	}
	if len(summary.ByCategory) != 1 || summary.ByCategory[0].Category != "Housing" {
		t.Errorf("by category = %v, want Housing only", summary.ByCategory)
	}

	if summary.ActiveTemplates != 2 {
		t.Errorf("active templates = %d, want 2", summary.ActiveTemplates)
	}
	if summary.OverdueCount != 0 {
		t.Errorf("overdue = %d, want 0 after the batch caught up", summary.OverdueCount)
	}
	if summary.DueSoonCount != 1 {
		t.Errorf("due soon = %d, want 1", summary.DueSoonCount)
	}
}
