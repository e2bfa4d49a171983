package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// Store is the persistence surface shared by every backend. Backends
// enforce occurrence uniqueness on (template, occurrence date) with a
// storage-level constraint, not only through caller discipline.
type Store interface {
	CreateTemplate(ctx context.Context, t core.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (core.Template, error)
	ListTemplates(ctx context.Context, ownerID uuid.UUID) ([]core.Template, error)
	ListActiveTemplates(ctx context.Context, ownerID uuid.UUID) ([]core.Template, error)
	UpdateTemplate(ctx context.Context, t core.Template) error
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
	MarkReminded(ctx context.Context, id uuid.UUID, on core.Date) error

	// ResetCursor moves the materialization cursor without creating an
	// expense. Only reactivation uses it, so a revived template resumes
	// from the current date instead of back-filling its inactive gap.
	ResetCursor(ctx context.Context, id uuid.UUID, to core.Date) error

	// MaterializeOccurrence inserts the expense and advances the owning
	// template's materialization cursor to the occurrence date, both in
	// a single transaction. It returns core.ErrDuplicateOccurrence when
	// the occurrence already exists and core.ErrTemplateNotFound when
	// the template row is gone.
	MaterializeOccurrence(ctx context.Context, e core.Expense) error

	ListExpenses(ctx context.Context, ownerID uuid.UUID, from, to *core.Date) ([]core.Expense, error)
	ReadMonthSummary(ctx context.Context, ownerID uuid.UUID, year, month int) (core.OwnerSummary, error)
	ListOwners(ctx context.Context) ([]uuid.UUID, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend by name. The dsn is a file path for sqlite, a
// connection string for postgres and is ignored for memory.
func Open(backend, dsn string) (Store, error) {
	switch backend {
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

func monthBounds(year, month int) (core.Date, core.Date) {
	from := core.NewDate(year, month, 1)
	to := core.NewDate(year, month, core.DaysInMonth(year, month))
	return from, to
}

// summarize aggregates one month of expenses in Go rather than SQL so
// amounts stay exact decimals end to end.
func summarize(year, month int, expenses []core.Expense) core.OwnerSummary {
	summary := core.OwnerSummary{
		Year:         year,
		Month:        month,
		ExpenseCount: len(expenses),
	}

	type catKey struct {
		category string
		currency string
	}
	totals := make(map[string]decimal.Decimal)
	byCategory := make(map[catKey]decimal.Decimal)
	for _, e := range expenses {
		totals[e.Currency] = totals[e.Currency].Add(e.Amount)
		k := catKey{category: e.Category, currency: e.Currency}
		byCategory[k] = byCategory[k].Add(e.Amount)
	}

	for currency, total := range totals {
		summary.Totals = append(summary.Totals, core.CurrencyTotal{Currency: currency, Total: total})
	}
	sort.Slice(summary.Totals, func(i, j int) bool {
		return summary.Totals[i].Currency < summary.Totals[j].Currency
	})

	for k, total := range byCategory {
		summary.ByCategory = append(summary.ByCategory, core.CategoryTotal{
			Category: k.category,
			Currency: k.currency,
			Total:    total,
		})
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		a, b := summary.ByCategory[i], summary.ByCategory[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Currency < b.Currency
	})

	return summary
}
