package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/rates"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

func newTestServer(t *testing.T, cronToken string) *Server {
	t.Helper()

	store := storage.NewMemoryStore()
	materializer := services.NewMaterializer(store, nil)
	srv := NewServer("127.0.0.1:0", Deps{
		Store:        store,
		Templates:    services.NewTemplateService(store, 3),
		Expenses:     services.NewExpenseService(store, 3),
		Materializer: materializer,
		Processor:    services.NewProcessor(store, materializer, 3, 2),
		Rates:        rates.NewService(nil, time.Hour),
		CronToken:    cronToken,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// monthStart returns the first day of the month n months before the
// current one.
func monthStart(monthsAgo int) core.Date {
	today := core.Today()
	return core.NewDate(today.Year(), today.Month()-monthsAgo, 1)
}

func monthlyPayload(owner uuid.UUID, start core.Date) map[string]any {
	return map[string]any{
		"owner_id":     owner.String(),
		"category":     "Housing",
		"amount":       "1200.50",
		"currency":     "EUR",
		"description":  "Rent",
		"frequency":    "monthly",
		"day_of_month": 1,
		"start_date":   start.String(),
	}
}

func TestServerTemplateLifecycle(t *testing.T) {
	srv := newTestServer(t, "")
	owner := uuid.New()
	start := monthStart(1)

	rec := doRequest(t, srv, http.MethodPost, "/api/templates", monthlyPayload(owner, start))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[templateResponse](t, rec)
	if created.ID == uuid.Nil {
		t.Fatal("create did not assign an id")
	}
	if created.Status != core.StatusOverdue {
		t.Errorf("status = %v, want overdue for a start date in the past", created.Status)
	}
	if created.NextDue == nil || !created.NextDue.Equal(start) {
		t.Errorf("next_due = %v, want %v", created.NextDue, start)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/templates?owner_id="+owner.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decodeBody[templateListResponse](t, rec)
	if list.Count != 1 || len(list.Templates) != 1 {
		t.Fatalf("list count = %d, want 1", list.Count)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/templates/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	update := monthlyPayload(owner, start)
	update["description"] = "Rent, renegotiated"
	rec = doRequest(t, srv, http.MethodPut, "/api/templates/"+created.ID.String(), update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[templateResponse](t, rec)
	if updated.Description != "Rent, renegotiated" {
		t.Errorf("description = %q after update", updated.Description)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/templates/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/templates/"+created.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	apiErr := decodeBody[apiError](t, rec)
	if apiErr.Error != "not_found" {
		t.Errorf("error code = %q, want not_found", apiErr.Error)
	}
}

func TestServerCreateTemplateRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, "")
	owner := uuid.New()

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/templates", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("bad owner id", func(t *testing.T) {
		payload := monthlyPayload(owner, monthStart(1))
		payload["owner_id"] = "not-a-uuid"
		rec := doRequest(t, srv, http.MethodPost, "/api/templates", payload)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		apiErr := decodeBody[apiError](t, rec)
		if apiErr.Error != "validation_error" || apiErr.Field != "owner_id" {
			t.Errorf("error = %q field %q, want validation_error on owner_id", apiErr.Error, apiErr.Field)
		}
	})

	t.Run("missing category", func(t *testing.T) {
		payload := monthlyPayload(owner, monthStart(1))
		payload["category"] = ""
		rec := doRequest(t, srv, http.MethodPost, "/api/templates", payload)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		apiErr := decodeBody[apiError](t, rec)
		if apiErr.Field != "category" {
			t.Errorf("field = %q, want category", apiErr.Field)
		}
	})
}

func TestServerMaterializeEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	owner := uuid.New()
	start := monthStart(1)

	rec := doRequest(t, srv, http.MethodPost, "/api/templates", monthlyPayload(owner, start))
	created := decodeBody[templateResponse](t, rec)

	rec = doRequest(t, srv, http.MethodPost, "/api/templates/"+created.ID.String()+"/materialize", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("materialize status = %d, body %s", rec.Code, rec.Body.String())
	}
	first := decodeBody[expenseResponse](t, rec)
	if !first.Date.Equal(start) {
		t.Errorf("first occurrence = %v, want the oldest missed date %v", first.Date, start)
	}
	if !first.Amount.Equal(decimal.RequireFromString("1200.50")) {
		t.Errorf("amount = %v, want 1200.50", first.Amount)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/templates/"+created.ID.String()+"/materialize", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("second materialize status = %d", rec.Code)
	}
	second := decodeBody[expenseResponse](t, rec)
	if !second.Date.Equal(monthStart(0)) {
		t.Errorf("second occurrence = %v, want %v", second.Date, monthStart(0))
	}

	// Deactivate, then materialization must be refused.
	update := monthlyPayload(owner, start)
	update["is_active"] = false
	rec = doRequest(t, srv, http.MethodPut, "/api/templates/"+created.ID.String(), update)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/templates/"+created.ID.String()+"/materialize", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("materialize inactive status = %d, want 422", rec.Code)
	}
	apiErr := decodeBody[apiError](t, rec)
	if apiErr.Error != "inactive_template" {
		t.Errorf("error code = %q, want inactive_template", apiErr.Error)
	}
}

func TestServerProcessDueEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	owner := uuid.New()

	rec := doRequest(t, srv, http.MethodPost, "/api/templates", monthlyPayload(owner, monthStart(2)))
	created := decodeBody[templateResponse](t, rec)

	rec = doRequest(t, srv, http.MethodPost, "/api/process-due?owner_id="+owner.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("process-due status = %d, body %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[services.Result](t, rec)
	if len(result.Succeeded) != 1 || result.Succeeded[0] != created.ID {
		t.Errorf("succeeded = %v, want [%s]", result.Succeeded, created.ID)
	}
	if len(result.Failed) != 0 {
		t.Errorf("failed = %v, want none", result.Failed)
	}
	if result.ExpensesCreated != 3 {
		t.Errorf("expenses_created = %d, want 3 for two missed months plus the current one", result.ExpensesCreated)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/expenses?owner_id="+owner.String(), nil)
	expenses := decodeBody[expenseListResponse](t, rec)
	if expenses.Count != 3 {
		t.Fatalf("expenses count = %d, want 3", expenses.Count)
	}
	for i := 1; i < len(expenses.Expenses); i++ {
		if expenses.Expenses[i].Date.Before(expenses.Expenses[i-1].Date) {
			t.Errorf("expenses out of order: %v before %v", expenses.Expenses[i].Date, expenses.Expenses[i-1].Date)
		}
	}

	// A second run finds nothing due.
	rec = doRequest(t, srv, http.MethodPost, "/api/process-due?owner_id="+owner.String(), nil)
	result = decodeBody[services.Result](t, rec)
	if result.ExpensesCreated != 0 || len(result.Succeeded) != 0 {
		t.Errorf("second run = %+v, want nothing processed", result)
	}
}

func TestServerExpensesExport(t *testing.T) {
	srv := newTestServer(t, "")
	owner := uuid.New()

	doRequest(t, srv, http.MethodPost, "/api/templates", monthlyPayload(owner, monthStart(1)))
	doRequest(t, srv, http.MethodPost, "/api/process-due?owner_id="+owner.String(), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/expenses/export?owner_id="+owner.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q, want text/csv", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("export lines = %d, want header plus two rows", len(lines))
	}
	if lines[0] != "date,category,description,amount,currency,template_id" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Housing") || !strings.Contains(lines[1], "1200.50") {
		t.Errorf("row = %q, want category and amount", lines[1])
	}
}

func TestServerSummaryCaching(t *testing.T) {
	srv := newTestServer(t, "")
	owner := uuid.New()

	doRequest(t, srv, http.MethodPost, "/api/templates", monthlyPayload(owner, monthStart(0)))
	doRequest(t, srv, http.MethodPost, "/api/process-due?owner_id="+owner.String(), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/summary?owner_id="+owner.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d, body %s", rec.Code, rec.Body.String())
	}
	first := decodeBody[summaryResponse](t, rec)
	if first.ExpenseCount != 1 {
		t.Errorf("expense_count = %d, want 1", first.ExpenseCount)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/summary?owner_id="+owner.String(), nil)
	second := decodeBody[summaryResponse](t, rec)
	if second.ExpenseCount != first.ExpenseCount {
		t.Errorf("cached summary diverged: %+v vs %+v", second, first)
	}
	if hits := atomic.LoadInt64(&srv.appMetrics.cacheHits); hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}

	// A mutation for the owner drops the cached month.
	doRequest(t, srv, http.MethodPost, "/api/templates", monthlyPayload(owner, monthStart(0)))
	doRequest(t, srv, http.MethodGet, "/api/summary?owner_id="+owner.String(), nil)
	if misses := atomic.LoadInt64(&srv.appMetrics.cacheMisses); misses != 2 {
		t.Errorf("cache misses = %d, want 2 after invalidation", misses)
	}
}

func TestServerCronRunEndpoint(t *testing.T) {
	srv := newTestServer(t, "sesame")
	owner := uuid.New()
	doRequest(t, srv, http.MethodPost, "/api/templates", monthlyPayload(owner, monthStart(1)))

	rec := doRequest(t, srv, http.MethodPost, "/api/cron/run", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing token status = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/cron/run", nil)
	req.Header.Set("X-Cron-Token", "wrong")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong token status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/cron/run", nil)
	req.Header.Set("X-Cron-Token", "sesame")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cron run status = %d, body %s", rec.Code, rec.Body.String())
	}
	run := decodeBody[cronRunResponse](t, rec)
	if run.Owners != 1 || run.Succeeded != 1 || run.ExpensesCreated != 2 {
		t.Errorf("cron run = %+v, want 1 owner, 1 succeeded, 2 expenses", run)
	}
}

func TestServerCronRunDisabledWithoutToken(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/cron/run", nil)
	req.Header.Set("X-Cron-Token", "")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when no token is configured", rec.Code)
	}
}

func TestServerConvertEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doRequest(t, srv, http.MethodGet, "/api/rates/convert?amount=100&from=EUR&to=USD", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("convert status = %d, body %s", rec.Code, rec.Body.String())
	}
	conv := decodeBody[conversionResponse](t, rec)
	if !conv.Converted.Equal(decimal.RequireFromString("108.70")) {
		t.Errorf("converted = %v, want 108.70", conv.Converted)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/rates/convert?amount=100&from=EUR&to=XXX", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown currency status = %d, want 422", rec.Code)
	}
	apiErr := decodeBody[apiError](t, rec)
	if apiErr.Error != "unknown_currency" {
		t.Errorf("error code = %q, want unknown_currency", apiErr.Error)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/rates/convert?amount=lots&from=EUR&to=USD", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad amount status = %d, want 422", rec.Code)
	}
}

func TestServerHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	health := decodeBody[map[string]any](t, rec)
	if health["status"] != "ok" {
		t.Errorf("health status = %v", health["status"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	for _, metric := range []string{"http_requests_total", "expenses_materialized_total", "uptime_seconds"} {
		if !strings.Contains(rec.Body.String(), metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestServerRateLimitsMutations(t *testing.T) {
	srv := newTestServer(t, "")

	var last int
	for i := 0; i < rateLimitRequests+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/templates", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after %d mutations = %d, want 429", rateLimitRequests+1, last)
	}

	// Reads are never limited.
	rec := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/templates?owner_id=%s", uuid.New()), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("read status = %d, want reads unaffected by the limiter", rec.Code)
	}
}
