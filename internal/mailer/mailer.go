package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/jordan-wright/email"

	"scadenze/internal/core"
)

// SMTP holds the relay settings. To is the single notification inbox
// obligations are reported to.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Sender delivers obligation reminders and occurrence receipts over SMTP
type Sender struct {
	smtp SMTP
}

// NewSender creates a new mail sender
func NewSender(smtp SMTP) *Sender {
	return &Sender{smtp: smtp}
}

// DeliverReminder sends a due or overdue obligation reminder. The name
// satisfies the reminder sink interface shared with the AMQP client.
func (s *Sender) DeliverReminder(ctx context.Context, n core.ReminderNotice) error {
	if err := s.send(ctx, reminderSubject(n), reminderBody(n)); err != nil {
		return fmt.Errorf("send reminder email: %w", err)
	}

	slog.InfoContext(ctx, "Reminder email sent",
		"to", s.smtp.To,
		"template_id", n.TemplateID,
		"due_date", n.DueDate,
		"status", n.Status)
	return nil
}

// SendReceipt confirms a freshly materialized occurrence
func (s *Sender) SendReceipt(ctx context.Context, e core.Expense) error {
	if err := s.send(ctx, receiptSubject(e), receiptBody(e)); err != nil {
		return fmt.Errorf("send receipt email: %w", err)
	}

	slog.InfoContext(ctx, "Receipt email sent",
		"to", s.smtp.To,
		"expense_id", e.ID,
		"occurred_on", e.Date)
	return nil
}

func (s *Sender) send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = s.smtp.From
	e.To = []string{s.smtp.To}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", s.smtp.Host, s.smtp.Port)
	var auth smtp.Auth
	if s.smtp.Username != "" {
		auth = smtp.PlainAuth("", s.smtp.Username, s.smtp.Password, s.smtp.Host)
	}
	return e.Send(addr, auth)
}

func reminderSubject(n core.ReminderNotice) string {
	if n.Status == core.StatusOverdue {
		return fmt.Sprintf("Overdue obligation: %s", n.Category)
	}
	return fmt.Sprintf("Upcoming obligation: %s", n.Category)
}

func reminderBody(n core.ReminderNotice) string {
	what := n.Description
	if what == "" {
		what = n.Category
	}

	var body string
	if n.Status == core.StatusOverdue {
		body = fmt.Sprintf(
			"Your recurring payment %q of %s %s was due on %s and has not been recorded yet.\n"+
				"Record the expense, or deactivate the template if it no longer applies.\n",
			what, n.Amount.StringFixed(2), n.Currency, n.DueDate,
		)
	} else {
		body = fmt.Sprintf(
			"This is a reminder that your recurring payment %q of %s %s is due on %s.\n",
			what, n.Amount.StringFixed(2), n.Currency, n.DueDate,
		)
	}
	body += "\nScadenze"
	return body
}

func receiptSubject(e core.Expense) string {
	return fmt.Sprintf("Expense recorded: %s", e.Category)
}

func receiptBody(e core.Expense) string {
	what := e.Description
	if what == "" {
		what = e.Category
	}

	return fmt.Sprintf(
		"The recurring payment %q was recorded automatically.\n\n"+
			"Category: %s\n"+
			"Amount: %s %s\n"+
			"Date: %s\n"+
			"\nScadenze",
		what, e.Category, e.Amount.StringFixed(2), e.Currency, e.Date,
	)
}
