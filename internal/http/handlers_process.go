package http

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync/atomic"

	"scadenze/internal/core"
)

func (s *Server) handleProcessDue(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerIDParam(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	result, err := s.processor.ProcessAllDue(r.Context(), owner)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesMaterialized, int64(result.ExpensesCreated))
	today := core.Today()
	s.invalidateSummary(owner, today.Year(), today.Month())

	writeJSON(w, http.StatusOK, result)
}

// handleCronRun triggers a full sweep across all owners. It backs
// external schedulers and is gated by a shared token.
func (s *Server) handleCronRun(w http.ResponseWriter, r *http.Request) {
	if s.cronToken == "" {
		writeError(w, http.StatusForbidden, "forbidden", "cron endpoint is not configured")
		return
	}

	token := r.Header.Get("X-Cron-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cronToken)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden", "invalid cron token")
		return
	}

	summary, err := s.processor.ProcessAllOwners(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.expensesMaterialized, int64(summary.ExpensesCreated))

	sent := 0
	if s.reminders != nil {
		sent, err = s.reminders.SweepReminders(r.Context())
		if err != nil {
			// The materialization sweep already ran; report it anyway.
			slog.ErrorContext(r.Context(), "Reminder sweep failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, cronRunResponse{
		Owners:          summary.Owners,
		Succeeded:       summary.Succeeded,
		Failed:          summary.Failed,
		ExpensesCreated: summary.ExpensesCreated,
		RemindersSent:   sent,
	})
}
