// Package schedule computes when recurring templates come due.
//
// This file implements the Strategy Pattern for occurrence computation.
// Each frequency (monthly, weekly, yearly) has its own rule that
// encapsulates how occurrence dates are derived from the template's
// anchor. All functions are pure; callers need no synchronization.
package schedule

import (
	"fmt"

	"scadenze/internal/core"
)

// OccurrenceRule is the strategy interface for one recurrence frequency.
// Occurrences are always derived from the template's anchor fields, never
// by adding an interval to a previous (possibly clamped) occurrence, so
// clamping to short months does not stick.
type OccurrenceRule interface {
	// First returns the earliest occurrence on or after the template's
	// start date.
	First(t core.Template) core.Date

	// Advance returns the occurrence that follows d.
	Advance(t core.Template, d core.Date) core.Date
}

// MonthlyRule anchors on Template.DayOfMonth. When the target month is
// shorter than the anchor day, the occurrence clamps to the month's last
// day (day 31 in February yields Feb 28, or Feb 29 in a leap year).
type MonthlyRule struct{}

func (MonthlyRule) First(t core.Template) core.Date {
	occ := monthOccurrence(t.StartDate.Year(), t.StartDate.Month(), *t.DayOfMonth)
	if occ.Before(t.StartDate) {
		occ = MonthlyRule{}.Advance(t, occ)
	}
	return occ
}

func (MonthlyRule) Advance(t core.Template, d core.Date) core.Date {
	year, month := d.Year(), d.Month()+1
	if month > 12 {
		month = 1
		year++
	}
	return monthOccurrence(year, month, *t.DayOfMonth)
}

// WeeklyRule anchors on Template.DayOfWeek (0=Monday). The first
// occurrence is the first matching weekday on or after the start date.
type WeeklyRule struct{}

func (WeeklyRule) First(t core.Template) core.Date {
	delta := (*t.DayOfWeek - core.WeekdayIndex(t.StartDate.Weekday()) + 7) % 7
	return t.StartDate.AddDays(delta)
}

func (WeeklyRule) Advance(_ core.Template, d core.Date) core.Date {
	return d.AddDays(7)
}

// YearlyRule anchors on the start date's month and day. A Feb 29 anchor
// clamps to Feb 28 in non-leap years and returns to Feb 29 when the leap
// day exists again.
type YearlyRule struct{}

func (YearlyRule) First(t core.Template) core.Date {
	return t.StartDate
}

func (YearlyRule) Advance(t core.Template, d core.Date) core.Date {
	return monthOccurrence(d.Year()+1, t.StartDate.Month(), t.StartDate.Day())
}

// monthOccurrence places the anchor day inside a concrete month,
// clamping to the month's last day when needed.
func monthOccurrence(year, month, day int) core.Date {
	if last := core.DaysInMonth(year, month); day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

// occurrenceRules maps frequencies to their rules.
var occurrenceRules = map[core.Frequency]OccurrenceRule{
	core.Monthly: MonthlyRule{},
	core.Weekly:  WeeklyRule{},
	core.Yearly:  YearlyRule{},
}

// RuleFor returns the occurrence rule for a frequency.
func RuleFor(frequency core.Frequency) (OccurrenceRule, error) {
	rule, ok := occurrenceRules[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return rule, nil
}

// NextDueDate returns the next unmaterialized occurrence for a template.
// The second return value is false when the template is inactive, its
// frequency is unknown, or the computed occurrence would fall past the
// end date.
//
// The engine never skips missed occurrences: with a stale cursor it
// returns the oldest unmaterialized occurrence, not the most recent one.
// Callers that want to catch up call it again after each materialization.
func NextDueDate(t core.Template) (core.Date, bool) {
	if !t.IsActive {
		return core.Date{}, false
	}
	rule, err := RuleFor(t.Frequency)
	if err != nil {
		return core.Date{}, false
	}

	next := rule.First(t)
	if t.LastMaterialized != nil {
		// Walk forward one period at a time until strictly past the cursor.
		for !next.After(*t.LastMaterialized) {
			next = rule.Advance(t, next)
		}
	}

	if t.EndDate != nil && next.After(*t.EndDate) {
		return core.Date{}, false
	}
	return next, true
}
