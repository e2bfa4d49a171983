package http

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"sync/atomic"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerIDParam(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	from, to, err := dateRangeParams(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	expenses, err := s.expenses.List(r.Context(), owner, from, to)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	out := expenseListResponse{Expenses: make([]expenseResponse, 0, len(expenses))}
	for _, e := range expenses {
		out.Expenses = append(out.Expenses, toExpenseResponse(e))
	}
	out.Count = len(out.Expenses)

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExportExpenses(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerIDParam(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	from, to, err := dateRangeParams(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	expenses, err := s.expenses.List(r.Context(), owner, from, to)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.csv"`)

	cw := csv.NewWriter(w)
	record := []string{"date", "category", "description", "amount", "currency", "template_id"}
	if err := cw.Write(record); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write csv export", "error", err)
		return
	}
	for _, e := range expenses {
		record = record[:0]
		record = append(record,
			e.Date.String(),
			e.Category,
			e.Description,
			e.Amount.StringFixed(2),
			e.Currency,
			e.TemplateID.String(),
		)
		if err := cw.Write(record); err != nil {
			slog.ErrorContext(r.Context(), "Failed to write csv export", "error", err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.ErrorContext(r.Context(), "Failed to flush csv export", "error", err)
	}
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerIDParam(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	year, month, err := monthParams(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	key := summaryKey(owner, year, month)
	if cached, ok := s.summaryCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		writeJSON(w, http.StatusOK, toSummaryResponse(cached))
		return
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	summary, err := s.expenses.MonthSummary(r.Context(), owner, year, month)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	s.summaryCache.Set(key, summary)

	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}
