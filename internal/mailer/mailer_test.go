package mailer

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

func testNotice(status core.DueStatus) core.ReminderNotice {
	return core.ReminderNotice{
		OwnerID:     uuid.New(),
		TemplateID:  uuid.New(),
		Description: "Apartment rent",
		Category:    "Housing",
		Amount:      decimal.RequireFromString("1200.5"),
		Currency:    "EUR",
		DueDate:     core.NewDate(2024, 3, 1),
		Status:      status,
	}
}

func TestReminderSubject(t *testing.T) {
	tests := []struct {
		name     string
		status   core.DueStatus
		expected string
	}{
		{"due soon", core.StatusDueSoon, "Upcoming obligation: Housing"},
		{"overdue", core.StatusOverdue, "Overdue obligation: Housing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reminderSubject(testNotice(tt.status))
			if got != tt.expected {
				t.Errorf("reminderSubject() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestReminderBody(t *testing.T) {
	t.Run("due soon wording", func(t *testing.T) {
		body := reminderBody(testNotice(core.StatusDueSoon))

		for _, want := range []string{"Apartment rent", "1200.50 EUR", "due on 2024-03-01", "reminder"} {
			if !strings.Contains(body, want) {
				t.Errorf("reminder body missing %q:\n%s", want, body)
			}
		}
		if strings.Contains(body, "overdue") {
			t.Errorf("due-soon body should not mention overdue:\n%s", body)
		}
	})

	t.Run("overdue wording", func(t *testing.T) {
		body := reminderBody(testNotice(core.StatusOverdue))

		for _, want := range []string{"was due on 2024-03-01", "not been recorded", "deactivate"} {
			if !strings.Contains(body, want) {
				t.Errorf("overdue body missing %q:\n%s", want, body)
			}
		}
	})

	t.Run("falls back to category without description", func(t *testing.T) {
		n := testNotice(core.StatusDueSoon)
		n.Description = ""

		body := reminderBody(n)
		if !strings.Contains(body, `"Housing"`) {
			t.Errorf("body should fall back to the category name:\n%s", body)
		}
	})
}

func TestReceiptBody(t *testing.T) {
	e := core.Expense{
		ID:          uuid.New(),
		TemplateID:  uuid.New(),
		OwnerID:     uuid.New(),
		Category:    "Housing",
		Amount:      decimal.RequireFromString("1200.5"),
		Currency:    "EUR",
		Description: "Apartment rent",
		Date:        core.NewDate(2024, 3, 1),
	}

	if got := receiptSubject(e); got != "Expense recorded: Housing" {
		t.Errorf("receiptSubject() = %q, want %q", got, "Expense recorded: Housing")
	}

	body := receiptBody(e)
	for _, want := range []string{"Apartment rent", "Amount: 1200.50 EUR", "Date: 2024-03-01"} {
		if !strings.Contains(body, want) {
			t.Errorf("receipt body missing %q:\n%s", want, body)
		}
	}
}
