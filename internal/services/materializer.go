package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

// ExpensePublisher broadcasts materialized occurrences to interested
// consumers. *amqp.Client implements it.
type ExpensePublisher interface {
	PublishExpenseMaterialized(ctx context.Context, e core.Expense) error
}

// Materializer turns one due occurrence of a template into a persisted
// expense, exactly once per (template, occurrence date). Calls for the
// same template are serialized in process; the storage uniqueness
// constraint backstops concurrent callers in other processes.
type Materializer struct {
	store     storage.Store
	publisher ExpensePublisher

	locks sync.Map // template id -> *sync.Mutex
}

// NewMaterializer creates a materializer. publisher may be nil when no
// broker is configured.
func NewMaterializer(store storage.Store, publisher ExpensePublisher) *Materializer {
	return &Materializer{
		store:     store,
		publisher: publisher,
	}
}

func (m *Materializer) lockFor(id uuid.UUID) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// MaterializeNext materializes the template's oldest unmaterialized
// occurrence, whatever its date. Missed occurrences come first, so
// catching up a stale template means calling this repeatedly.
func (m *Materializer) MaterializeNext(ctx context.Context, templateID uuid.UUID) (core.Expense, error) {
	lock := m.lockFor(templateID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.GetTemplate(ctx, templateID)
	if err != nil {
		return core.Expense{}, err
	}
	if !t.IsActive {
		return core.Expense{}, fmt.Errorf("%w: %s", core.ErrInactiveTemplate, templateID)
	}

	next, ok := schedule.NextDueDate(t)
	if !ok {
		return core.Expense{}, fmt.Errorf("%w: %s", core.ErrNoDueOccurrence, templateID)
	}

	return m.materialize(ctx, t, next)
}

// Materialize materializes one specific occurrence of a template
func (m *Materializer) Materialize(ctx context.Context, templateID uuid.UUID, on core.Date) (core.Expense, error) {
	lock := m.lockFor(templateID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.GetTemplate(ctx, templateID)
	if err != nil {
		return core.Expense{}, err
	}
	if !t.IsActive {
		return core.Expense{}, fmt.Errorf("%w: %s", core.ErrInactiveTemplate, templateID)
	}

	return m.materialize(ctx, t, on)
}

func (m *Materializer) materialize(ctx context.Context, t core.Template, on core.Date) (core.Expense, error) {
	e := core.Expense{
		ID:          uuid.New(),
		TemplateID:  t.ID,
		OwnerID:     t.OwnerID,
		Category:    t.Category,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Description: t.Description,
		Date:        on,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.store.MaterializeOccurrence(ctx, e); err != nil {
		return core.Expense{}, err
	}

	if err := m.publish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish materialized occurrence",
			"expense_id", e.ID,
			"template_id", e.TemplateID,
			"error", err)
		// Don't fail the operation - the expense is persisted
	}

	return e, nil
}

func (m *Materializer) publish(ctx context.Context, e core.Expense) error {
	if m.publisher == nil {
		return nil
	}
	return m.publisher.PublishExpenseMaterialized(ctx, e)
}
