package services

import (
	"context"
	"log/slog"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

// ReminderSink delivers one reminder notice. *amqp.Client and
// *mailer.Sender both implement it, so reminders can go to a broker, to
// email, or to both.
type ReminderSink interface {
	DeliverReminder(ctx context.Context, n core.ReminderNotice) error
}

// ReminderService finds templates that are due soon or overdue and
// pushes one notice per occurrence through the configured sinks.
type ReminderService struct {
	store       storage.Store
	dueSoonDays int
	sinks       []ReminderSink
}

// NewReminderService creates a reminder service. Nil sinks are
// dropped so callers can pass conditionally wired clients directly.
func NewReminderService(store storage.Store, dueSoonDays int, sinks ...ReminderSink) *ReminderService {
	s := &ReminderService{
		store:       store,
		dueSoonDays: dueSoonDays,
	}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	return s
}

// SweepReminders walks every owner's active templates and delivers a
// notice for each occurrence that is due soon or overdue. A template is
// reminded at most once per occurrence; the LastReminded cursor keeps
// repeated sweeps quiet until the next occurrence comes due. Returns
// the number of notices sent.
func (s *ReminderService) SweepReminders(ctx context.Context) (int, error) {
	if len(s.sinks) == 0 {
		slog.WarnContext(ctx, "No reminder sinks configured, skipping sweep")
		return 0, nil
	}

	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return 0, err
	}

	today := core.Today()
	sent := 0

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		templates, err := s.store.ListActiveTemplates(ctx, owner)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to list templates for reminders",
				"owner_id", owner,
				"error", err)
			continue
		}

		for _, t := range templates {
			a := schedule.Evaluate(t, today, s.dueSoonDays)
			if a.Status != core.StatusDueSoon && a.Status != core.StatusOverdue {
				continue
			}
			if a.NextDue == nil {
				continue
			}
			if t.LastReminded != nil && t.LastReminded.Equal(*a.NextDue) {
				continue
			}

			notice := core.ReminderNotice{
				OwnerID:     t.OwnerID,
				TemplateID:  t.ID,
				Description: t.Description,
				Category:    t.Category,
				Amount:      t.Amount,
				Currency:    t.Currency,
				DueDate:     *a.NextDue,
				Status:      a.Status,
			}

			if !s.deliver(ctx, notice) {
				continue
			}

			if err := s.store.MarkReminded(ctx, t.ID, *a.NextDue); err != nil {
				slog.WarnContext(ctx, "Failed to record reminder, it may repeat",
					"template_id", t.ID,
					"error", err)
			}
			sent++
		}
	}

	slog.InfoContext(ctx, "Reminder sweep complete",
		"owners", len(owners),
		"sent", sent)

	return sent, nil
}

// deliver fans the notice out to every sink and reports whether at
// least one accepted it.
func (s *ReminderService) deliver(ctx context.Context, n core.ReminderNotice) bool {
	delivered := false
	for _, sink := range s.sinks {
		if err := sink.DeliverReminder(ctx, n); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver reminder",
				"template_id", n.TemplateID,
				"due_date", n.DueDate,
				"error", err)
			continue
		}
		delivered = true
	}
	return delivered
}
