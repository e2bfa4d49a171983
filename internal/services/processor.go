package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

// Processor runs the batch materialization sweep: every active template
// whose next occurrence is already due gets caught up to today, each
// template in isolation so one failure never blocks the rest.
type Processor struct {
	store        storage.Store
	materializer *Materializer
	dueSoonDays  int
	parallelism  int
}

// NewProcessor creates a processor. parallelism bounds how many
// templates are materialized concurrently; values below 1 mean serial.
func NewProcessor(store storage.Store, materializer *Materializer, dueSoonDays, parallelism int) *Processor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Processor{
		store:        store,
		materializer: materializer,
		dueSoonDays:  dueSoonDays,
		parallelism:  parallelism,
	}
}

// ItemError reports one template that could not be processed.
type ItemError struct {
	TemplateID  uuid.UUID `json:"template_id"`
	Description string    `json:"description,omitempty"`
	Err         string    `json:"error"`
}

// Result summarizes one batch run for one owner.
type Result struct {
	Succeeded       []uuid.UUID `json:"succeeded"`
	Failed          []ItemError `json:"failed"`
	ExpensesCreated int         `json:"expenses_created"`
}

// ProcessAllDue materializes every overdue occurrence of every active
// template belonging to ownerID. Templates that were already
// materialized by a concurrent run count as succeeded.
func (p *Processor) ProcessAllDue(ctx context.Context, ownerID uuid.UUID) (Result, error) {
	today := core.Today()

	templates, err := p.store.ListActiveTemplates(ctx, ownerID)
	if err != nil {
		return Result{}, err
	}

	var due []core.Template
	for _, t := range templates {
		next, ok := schedule.NextDueDate(t)
		if !ok {
			continue
		}
		if schedule.Classify(next, today, p.dueSoonDays) == core.StatusOverdue {
			due = append(due, t)
		}
	}

	slog.InfoContext(ctx, "Starting batch materialization",
		"owner_id", ownerID,
		"total_active", len(templates),
		"due", len(due),
		"processing_date", today)

	res := Result{
		Succeeded: []uuid.UUID{},
		Failed:    []ItemError{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for _, t := range due {
		t := t
		g.Go(func() error {
			created, err := p.catchUp(gctx, t.ID, today)

			mu.Lock()
			defer mu.Unlock()
			res.ExpensesCreated += created
			if err != nil {
				slog.ErrorContext(gctx, "Failed to process template",
					"template_id", t.ID,
					"description", t.Description,
					"error", err)
				res.Failed = append(res.Failed, ItemError{
					TemplateID:  t.ID,
					Description: t.Description,
					Err:         err.Error(),
				})
				return nil
			}
			res.Succeeded = append(res.Succeeded, t.ID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "Batch materialization complete",
		"owner_id", ownerID,
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failed),
		"expenses_created", res.ExpensesCreated)

	return res, nil
}

// catchUp materializes occurrences of one template until its next due
// date moves past today. The template is refetched every round because
// each successful materialization advances its cursor, possibly from a
// concurrent run.
func (p *Processor) catchUp(ctx context.Context, templateID uuid.UUID, today core.Date) (int, error) {
	created := 0
	var lastDuplicate core.Date

	for {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		t, err := p.store.GetTemplate(ctx, templateID)
		if err != nil {
			return created, err
		}
		if !t.IsActive {
			// Deactivated between selection and processing.
			return created, fmt.Errorf("%w: %s", core.ErrInactiveTemplate, templateID)
		}

		next, ok := schedule.NextDueDate(t)
		if !ok || next.After(today) {
			return created, nil
		}
		if !lastDuplicate.IsZero() && next.Equal(lastDuplicate) {
			// The occurrence row exists but the cursor never moved past
			// it. Stop instead of spinning; the cursor needs a manual fix.
			return created, nil
		}

		_, err = p.materializer.Materialize(ctx, templateID, next)
		switch {
		case err == nil:
			created++
			lastDuplicate = core.Date{}
		case errors.Is(err, core.ErrDuplicateOccurrence):
			// A concurrent run won the race. Its commit advanced the
			// cursor, so the refetch will see fresh state.
			lastDuplicate = next
		default:
			return created, err
		}
	}
}

// SweepSummary aggregates a batch run across every owner in the store.
type SweepSummary struct {
	Owners          int `json:"owners"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	ExpensesCreated int `json:"expenses_created"`
}

// ProcessAllOwners runs ProcessAllDue for every owner with at least one
// template. The scheduler calls this on its tick.
func (p *Processor) ProcessAllOwners(ctx context.Context) (SweepSummary, error) {
	owners, err := p.store.ListOwners(ctx)
	if err != nil {
		return SweepSummary{}, err
	}

	var summary SweepSummary
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := p.ProcessAllDue(ctx, owner)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process owner",
				"owner_id", owner,
				"error", err)
			continue
		}

		summary.Owners++
		summary.Succeeded += len(res.Succeeded)
		summary.Failed += len(res.Failed)
		summary.ExpensesCreated += res.ExpensesCreated
	}

	return summary, nil
}
