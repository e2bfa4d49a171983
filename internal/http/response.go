package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/rates"
	"scadenze/internal/services"
)

// apiError is the uniform error body returned by every endpoint.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: code, Message: message})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognized is treated as an internal error and logged.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Error:   "validation_error",
			Message: verr.Error(),
			Field:   verr.Field,
		})
	case errors.Is(err, core.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrInactiveTemplate):
		writeError(w, http.StatusUnprocessableEntity, "inactive_template", err.Error())
	case errors.Is(err, core.ErrDuplicateOccurrence):
		writeError(w, http.StatusConflict, "duplicate_occurrence", err.Error())
	case errors.Is(err, core.ErrNoDueOccurrence):
		writeError(w, http.StatusUnprocessableEntity, "no_due_occurrence", err.Error())
	case errors.Is(err, rates.ErrUnknownCurrency):
		writeError(w, http.StatusUnprocessableEntity, "unknown_currency", err.Error())
	case errors.Is(err, core.ErrTransactionFailed):
		slog.ErrorContext(ctx, "Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transaction_failed", err.Error())
	default:
		slog.ErrorContext(ctx, "Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

type templateResponse struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Category         string          `json:"category"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description,omitempty"`
	Frequency        core.Frequency  `json:"frequency"`
	DayOfMonth       *int            `json:"day_of_month,omitempty"`
	DayOfWeek        *int            `json:"day_of_week,omitempty"`
	StartDate        core.Date       `json:"start_date"`
	EndDate          *core.Date      `json:"end_date,omitempty"`
	IsActive         bool            `json:"is_active"`
	LastMaterialized *core.Date      `json:"last_materialized,omitempty"`
	NextDue          *core.Date      `json:"next_due,omitempty"`
	Status           core.DueStatus  `json:"status"`
	DaysUntilDue     *int            `json:"days_until_due,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toTemplateResponse(at services.AnnotatedTemplate) templateResponse {
	return templateResponse{
		ID:               at.ID,
		OwnerID:          at.OwnerID,
		Category:         at.Category,
		Amount:           at.Amount,
		Currency:         at.Currency,
		Description:      at.Description,
		Frequency:        at.Frequency,
		DayOfMonth:       at.DayOfMonth,
		DayOfWeek:        at.DayOfWeek,
		StartDate:        at.StartDate,
		EndDate:          at.EndDate,
		IsActive:         at.IsActive,
		LastMaterialized: at.LastMaterialized,
		NextDue:          at.NextDue,
		Status:           at.Status,
		DaysUntilDue:     at.DaysUntil,
		CreatedAt:        at.CreatedAt,
		UpdatedAt:        at.UpdatedAt,
	}
}

type templateListResponse struct {
	Templates []templateResponse `json:"templates"`
	Count     int                `json:"count"`
}

type expenseResponse struct {
	ID          uuid.UUID       `json:"id"`
	TemplateID  uuid.UUID       `json:"template_id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	Date        core.Date       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		TemplateID:  e.TemplateID,
		OwnerID:     e.OwnerID,
		Category:    e.Category,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Description: e.Description,
		Date:        e.Date,
		CreatedAt:   e.CreatedAt,
	}
}

type expenseListResponse struct {
	Expenses []expenseResponse `json:"expenses"`
	Count    int               `json:"count"`
}

type currencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

type categoryTotal struct {
	Category string          `json:"category"`
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

type summaryResponse struct {
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	ExpenseCount    int             `json:"expense_count"`
	Totals          []currencyTotal `json:"totals"`
	ByCategory      []categoryTotal `json:"by_category"`
	ActiveTemplates int             `json:"active_templates"`
	OverdueCount    int             `json:"overdue_count"`
	DueSoonCount    int             `json:"due_soon_count"`
}

func toSummaryResponse(s core.OwnerSummary) summaryResponse {
	out := summaryResponse{
		Year:            s.Year,
		Month:           s.Month,
		ExpenseCount:    s.ExpenseCount,
		Totals:          make([]currencyTotal, 0, len(s.Totals)),
		ByCategory:      make([]categoryTotal, 0, len(s.ByCategory)),
		ActiveTemplates: s.ActiveTemplates,
		OverdueCount:    s.OverdueCount,
		DueSoonCount:    s.DueSoonCount,
	}
	for _, t := range s.Totals {
		out.Totals = append(out.Totals, currencyTotal{Currency: t.Currency, Total: t.Total})
	}
	for _, c := range s.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryTotal{Category: c.Category, Currency: c.Currency, Total: c.Total})
	}
	return out
}

type conversionResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Converted decimal.Decimal `json:"converted"`
	Rate      decimal.Decimal `json:"rate"`
}

func toConversionResponse(c rates.Conversion) conversionResponse {
	return conversionResponse{
		Amount:    c.OriginalAmount,
		From:      c.FromCurrency,
		To:        c.ToCurrency,
		Converted: c.ConvertedAmount,
		Rate:      c.Rate,
	}
}

type cronRunResponse struct {
	Owners          int `json:"owners"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	ExpensesCreated int `json:"expenses_created"`
	RemindersSent   int `json:"reminders_sent"`
}
