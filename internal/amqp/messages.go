package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// Message kinds routed through the occurrence queue.
const (
	KindExpenseMaterialized = "expense.materialized"
	KindReminderDue         = "reminder.due"
)

// ExpensePayload carries a materialized occurrence. Identifiers, amounts
// and dates travel as strings so consumers can parse them without
// precision loss.
type ExpensePayload struct {
	ExpenseID   string `json:"expense_id"`
	TemplateID  string `json:"template_id"`
	OwnerID     string `json:"owner_id"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	OccurredOn  string `json:"occurred_on"`
}

// ReminderPayload carries a due or overdue obligation notice.
type ReminderPayload struct {
	TemplateID  string `json:"template_id"`
	OwnerID     string `json:"owner_id"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
}

// Message is the envelope for everything published to the queue.
// Exactly one payload field is set, matching Kind.
type Message struct {
	Kind      string           `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Expense   *ExpensePayload  `json:"expense,omitempty"`
	Reminder  *ReminderPayload `json:"reminder,omitempty"`
}

// NewExpenseMessage creates an expense.materialized message
func NewExpenseMessage(e core.Expense) *Message {
	return &Message{
		Kind:      KindExpenseMaterialized,
		Timestamp: time.Now(),
		Expense: &ExpensePayload{
			ExpenseID:   e.ID.String(),
			TemplateID:  e.TemplateID.String(),
			OwnerID:     e.OwnerID.String(),
			Category:    e.Category,
			Amount:      e.Amount.String(),
			Currency:    e.Currency,
			Description: e.Description,
			OccurredOn:  e.Date.String(),
		},
	}
}

// NewReminderMessage creates a reminder.due message
func NewReminderMessage(n core.ReminderNotice) *Message {
	return &Message{
		Kind:      KindReminderDue,
		Timestamp: time.Now(),
		Reminder: &ReminderPayload{
			TemplateID:  n.TemplateID.String(),
			OwnerID:     n.OwnerID.String(),
			Category:    n.Category,
			Description: n.Description,
			Amount:      n.Amount.String(),
			Currency:    n.Currency,
			DueDate:     n.DueDate.String(),
			Status:      string(n.Status),
		},
	}
}

// ToExpense converts the payload back into a domain expense
func (p *ExpensePayload) ToExpense() (core.Expense, error) {
	var e core.Expense

	id, err := uuid.Parse(p.ExpenseID)
	if err != nil {
		return e, fmt.Errorf("parse expense_id: %w", err)
	}
	templateID, err := uuid.Parse(p.TemplateID)
	if err != nil {
		return e, fmt.Errorf("parse template_id: %w", err)
	}
	ownerID, err := uuid.Parse(p.OwnerID)
	if err != nil {
		return e, fmt.Errorf("parse owner_id: %w", err)
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return e, fmt.Errorf("parse amount: %w", err)
	}
	occurredOn, err := core.ParseDate(p.OccurredOn)
	if err != nil {
		return e, fmt.Errorf("parse occurred_on: %w", err)
	}

	return core.Expense{
		ID:          id,
		TemplateID:  templateID,
		OwnerID:     ownerID,
		Category:    p.Category,
		Amount:      amount,
		Currency:    p.Currency,
		Description: p.Description,
		Date:        occurredOn,
	}, nil
}

// ToNotice converts the payload back into a domain reminder notice
func (p *ReminderPayload) ToNotice() (core.ReminderNotice, error) {
	var n core.ReminderNotice

	templateID, err := uuid.Parse(p.TemplateID)
	if err != nil {
		return n, fmt.Errorf("parse template_id: %w", err)
	}
	ownerID, err := uuid.Parse(p.OwnerID)
	if err != nil {
		return n, fmt.Errorf("parse owner_id: %w", err)
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return n, fmt.Errorf("parse amount: %w", err)
	}
	dueDate, err := core.ParseDate(p.DueDate)
	if err != nil {
		return n, fmt.Errorf("parse due_date: %w", err)
	}

	return core.ReminderNotice{
		TemplateID:  templateID,
		OwnerID:     ownerID,
		Category:    p.Category,
		Description: p.Description,
		Amount:      amount,
		Currency:    p.Currency,
		DueDate:     dueDate,
		Status:      core.DueStatus(p.Status),
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate checks that the kind is known and its payload is present
func (m *Message) Validate() error {
	switch m.Kind {
	case KindExpenseMaterialized:
		if m.Expense == nil {
			return fmt.Errorf("message %s without expense payload", m.Kind)
		}
	case KindReminderDue:
		if m.Reminder == nil {
			return fmt.Errorf("message %s without reminder payload", m.Kind)
		}
	default:
		return fmt.Errorf("unknown message kind: %q", m.Kind)
	}
	return nil
}

// MessageFromJSON creates a validated message from JSON bytes
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
