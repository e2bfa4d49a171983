package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// maxBodyBytes bounds request bodies. Template payloads are tiny.
const maxBodyBytes = 1 << 20

// templatePayload is the wire shape shared by create and update.
type templatePayload struct {
	OwnerID     string          `json:"owner_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Frequency   string          `json:"frequency"`
	DayOfMonth  *int            `json:"day_of_month"`
	DayOfWeek   *int            `json:"day_of_week"`
	StartDate   core.Date       `json:"start_date"`
	EndDate     *core.Date      `json:"end_date"`
	IsActive    *bool           `json:"is_active"`
}

func decodeTemplatePayload(r *http.Request) (templatePayload, error) {
	var p templatePayload
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("decode template payload: %w", err)
	}
	return p, nil
}

// toTemplate converts the payload into a domain template. Field-level
// validation happens in the service layer; this only rejects values
// that cannot be represented at all.
func (p templatePayload) toTemplate(id uuid.UUID) (core.Template, error) {
	owner, err := uuid.Parse(strings.TrimSpace(p.OwnerID))
	if err != nil {
		return core.Template{}, &core.ValidationError{Field: "owner_id", Reason: "must be a UUID"}
	}

	t := core.Template{
		ID:          id,
		OwnerID:     owner,
		Category:    sanitizeInput(p.Category),
		Amount:      p.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(p.Currency)),
		Description: sanitizeInput(p.Description),
		Frequency:   core.Frequency(strings.ToLower(strings.TrimSpace(p.Frequency))),
		DayOfMonth:  p.DayOfMonth,
		DayOfWeek:   p.DayOfWeek,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		IsActive:    true,
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	return t, nil
}

// templateIDVar reads the {id} path variable.
func templateIDVar(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: "id", Reason: "must be a UUID"}
	}
	return id, nil
}

// ownerIDParam reads the required owner_id query parameter.
func ownerIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if raw == "" {
		return uuid.Nil, &core.ValidationError{Field: "owner_id", Reason: "required"}
	}
	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: "owner_id", Reason: "must be a UUID"}
	}
	return owner, nil
}

// dateRangeParams reads the optional from/to query bounds.
func dateRangeParams(r *http.Request) (from, to *core.Date, err error) {
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		d, perr := core.ParseDate(v)
		if perr != nil {
			return nil, nil, &core.ValidationError{Field: "from", Reason: "must be YYYY-MM-DD"}
		}
		from = &d
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		d, perr := core.ParseDate(v)
		if perr != nil {
			return nil, nil, &core.ValidationError{Field: "to", Reason: "must be YYYY-MM-DD"}
		}
		to = &d
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, &core.ValidationError{Field: "to", Reason: "must be on or after from"}
	}
	return from, to, nil
}

// monthParams reads year and month query parameters, defaulting to the
// current month.
func monthParams(r *http.Request) (year, month int, err error) {
	today := core.Today()
	year, month = today.Year(), today.Month()

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, perr := strconv.Atoi(v)
		if perr != nil || y < 1970 || y > 9999 {
			return 0, 0, &core.ValidationError{Field: "year", Reason: "must be a four-digit year"}
		}
		year = y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, perr := strconv.Atoi(v)
		if perr != nil || m < 1 || m > 12 {
			return 0, 0, &core.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
		}
		month = m
	}
	return year, month, nil
}

// sanitizeInput trims whitespace and strips control characters from
// free-text fields.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
