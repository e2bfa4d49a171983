package services

import (
	"context"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

// ExpenseService reads materialized expenses and builds the monthly
// dashboard summary.
type ExpenseService struct {
	store       storage.Store
	dueSoonDays int
}

func NewExpenseService(store storage.Store, dueSoonDays int) *ExpenseService {
	return &ExpenseService{
		store:       store,
		dueSoonDays: dueSoonDays,
	}
}

// List returns an owner's expenses in occurrence order, optionally
// bounded by an inclusive date range.
func (s *ExpenseService) List(ctx context.Context, ownerID uuid.UUID, from, to *core.Date) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, ownerID, from, to)
}

// MonthSummary aggregates one month of spending and layers the current
// due state of the owner's templates on top.
func (s *ExpenseService) MonthSummary(ctx context.Context, ownerID uuid.UUID, year, month int) (core.OwnerSummary, error) {
	summary, err := s.store.ReadMonthSummary(ctx, ownerID, year, month)
	if err != nil {
		return core.OwnerSummary{}, err
	}

	templates, err := s.store.ListActiveTemplates(ctx, ownerID)
	if err != nil {
		return core.OwnerSummary{}, err
	}

	today := core.Today()
	summary.ActiveTemplates = len(templates)
	for _, t := range templates {
		switch schedule.Evaluate(t, today, s.dueSoonDays).Status {
		case core.StatusOverdue:
			summary.OverdueCount++
		case core.StatusDueSoon:
			summary.DueSoonCount++
		}
	}

	return summary, nil
}
