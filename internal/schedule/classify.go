package schedule

import "scadenze/internal/core"

// Classify maps a next due date onto its due-window status relative to
// today. Pure and side-effect free: overdue iff the due date is today or
// earlier; due_soon iff it falls within dueSoonDays from today; upcoming
// otherwise. Overdue templates are exactly the set eligible for bulk
// processing.
func Classify(nextDue, today core.Date, dueSoonDays int) core.DueStatus {
	if !nextDue.After(today) {
		return core.StatusOverdue
	}
	if today.DaysUntil(nextDue) <= dueSoonDays {
		return core.StatusDueSoon
	}
	return core.StatusUpcoming
}

// Annotation is the due information attached to a template for display:
// the computed next occurrence and its classification. NextDue and
// DaysUntil are nil when no further occurrence exists.
type Annotation struct {
	NextDue   *core.Date
	Status    core.DueStatus
	DaysUntil *int
}

// Evaluate derives the full due state of a template as of today.
// Inactive templates report StatusInactive; active templates whose rule
// yields nothing (past end date) report StatusExpired, a terminal
// classification rather than an error.
func Evaluate(t core.Template, today core.Date, dueSoonDays int) Annotation {
	if !t.IsActive {
		return Annotation{Status: core.StatusInactive}
	}
	next, ok := NextDueDate(t)
	if !ok {
		return Annotation{Status: core.StatusExpired}
	}
	days := today.DaysUntil(next)
	return Annotation{
		NextDue:   &next,
		Status:    Classify(next, today, dueSoonDays),
		DaysUntil: &days,
	}
}
