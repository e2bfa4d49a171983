package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency is the recurrence rule family of a template.
type Frequency string

const (
	Monthly Frequency = "monthly"
	Weekly  Frequency = "weekly"
	Yearly  Frequency = "yearly"
)

// DueStatus is the derived due state of a template. It is computed on
// demand and never persisted. Overdue, DueSoon and Upcoming come from
// the classifier; Expired and Inactive describe templates with no next
// occurrence.
type DueStatus string

const (
	StatusOverdue  DueStatus = "overdue"
	StatusDueSoon  DueStatus = "due_soon"
	StatusUpcoming DueStatus = "upcoming"
	StatusExpired  DueStatus = "expired"
	StatusInactive DueStatus = "inactive"
)

// Template is a recurring obligation definition. It represents no
// actual spending until an occurrence is materialized into an Expense.
type Template struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Category    string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Frequency   Frequency

	// Exactly one of DayOfMonth/DayOfWeek is set, matching Frequency.
	// Yearly templates anchor on StartDate's month and day instead.
	DayOfMonth *int // 1-31
	DayOfWeek  *int // 0=Monday .. 6=Sunday

	StartDate Date
	EndDate   *Date

	IsActive bool

	// LastMaterialized is the cursor: the most recent occurrence date
	// successfully turned into an Expense. Nil when never materialized.
	LastMaterialized *Date

	// LastReminded is the occurrence date a reminder was last sent for.
	LastReminded *Date

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expense is a materialized occurrence of a template: a concrete,
// persisted financial record. TemplateID is a weak back-reference and
// survives deletion of the template. The pair (TemplateID, Date) is
// unique in storage.
type Expense struct {
	ID          uuid.UUID
	TemplateID  uuid.UUID
	OwnerID     uuid.UUID
	Category    string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Date        Date
	CreatedAt   time.Time
}

// ReminderNotice is the payload of a due-soon notification.
type ReminderNotice struct {
	OwnerID     uuid.UUID
	TemplateID  uuid.UUID
	Description string
	Category    string
	Amount      decimal.Decimal
	Currency    string
	DueDate     Date
	Status      DueStatus
}

// WeekdayIndex maps a time.Weekday onto the 0=Monday..6=Sunday scheme
// used by Template.DayOfWeek.
func WeekdayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Validate checks all template invariants. It returns a *ValidationError
// for the first violated field, so malformed templates never reach the
// scheduler.
func (t Template) Validate() error {
	if t.OwnerID == uuid.Nil {
		return &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if strings.TrimSpace(t.Category) == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if len(t.Category) > 100 {
		return &ValidationError{Field: "category", Reason: "too long (max 100 characters)"}
	}
	if len(t.Description) > 500 {
		return &ValidationError{Field: "description", Reason: "too long (max 500 characters)"}
	}
	if t.Amount.Sign() <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !validCurrency(t.Currency) {
		return &ValidationError{Field: "currency", Reason: "must be a 3-letter ISO code"}
	}

	switch t.Frequency {
	case Monthly:
		if t.DayOfMonth == nil {
			return &ValidationError{Field: "day_of_month", Reason: "required for monthly templates"}
		}
		if *t.DayOfMonth < 1 || *t.DayOfMonth > 31 {
			return &ValidationError{Field: "day_of_month", Reason: "must be between 1 and 31"}
		}
		if t.DayOfWeek != nil {
			return &ValidationError{Field: "day_of_week", Reason: "not allowed for monthly templates"}
		}
	case Weekly:
		if t.DayOfWeek == nil {
			return &ValidationError{Field: "day_of_week", Reason: "required for weekly templates"}
		}
		if *t.DayOfWeek < 0 || *t.DayOfWeek > 6 {
			return &ValidationError{Field: "day_of_week", Reason: "must be between 0 (Monday) and 6 (Sunday)"}
		}
		if t.DayOfMonth != nil {
			return &ValidationError{Field: "day_of_month", Reason: "not allowed for weekly templates"}
		}
	case Yearly:
		if t.DayOfMonth != nil {
			return &ValidationError{Field: "day_of_month", Reason: "not allowed for yearly templates"}
		}
		if t.DayOfWeek != nil {
			return &ValidationError{Field: "day_of_week", Reason: "not allowed for yearly templates"}
		}
	default:
		return &ValidationError{Field: "frequency", Reason: "must be monthly, weekly or yearly"}
	}

	if err := t.StartDate.Validate(); err != nil {
		return &ValidationError{Field: "start_date", Reason: "required"}
	}
	if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "must be on or after start_date"}
	}

	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
