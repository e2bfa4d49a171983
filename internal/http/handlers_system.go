package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.startedAt).String(),
	})
}

// handleReady reports whether the server can serve traffic. Storage
// must answer a ping; everything else is informational.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := s.store.Ping(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		ready = false
	} else {
		checks["storage"] = "ok"
	}

	checks["summary_cache"] = fmt.Sprintf("ok (%d entries)", s.summaryCache.Size())
	checks["rate_limiter"] = fmt.Sprintf("ok (%d clients)", s.rateLimiter.ActiveClients())

	status := http.StatusOK
	body := map[string]any{"status": "ready", "checks": checks}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "not_ready"
	}

	writeJSON(w, status, body)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "# HELP http_requests_total Total HTTP requests handled.\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n", atomic.LoadInt64(&s.appMetrics.requestsTotal))

	fmt.Fprintf(w, "# HELP expenses_materialized_total Expenses created from templates via this server.\n")
	fmt.Fprintf(w, "# TYPE expenses_materialized_total counter\n")
	fmt.Fprintf(w, "expenses_materialized_total %d\n", atomic.LoadInt64(&s.appMetrics.expensesMaterialized))

	fmt.Fprintf(w, "# HELP summary_cache_hits_total Month summary cache hits.\n")
	fmt.Fprintf(w, "# TYPE summary_cache_hits_total counter\n")
	fmt.Fprintf(w, "summary_cache_hits_total %d\n", atomic.LoadInt64(&s.appMetrics.cacheHits))

	fmt.Fprintf(w, "# HELP summary_cache_misses_total Month summary cache misses.\n")
	fmt.Fprintf(w, "# TYPE summary_cache_misses_total counter\n")
	fmt.Fprintf(w, "summary_cache_misses_total %d\n", atomic.LoadInt64(&s.appMetrics.cacheMisses))

	fmt.Fprintf(w, "# HELP summary_cache_entries Current month summary cache size.\n")
	fmt.Fprintf(w, "# TYPE summary_cache_entries gauge\n")
	fmt.Fprintf(w, "summary_cache_entries %d\n", s.summaryCache.Size())

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Requests rejected by the rate limiter.\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n", atomic.LoadInt64(&s.metrics.rateLimitHits))

	fmt.Fprintf(w, "# HELP suspicious_requests_total Requests flagged as suspicious.\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n", atomic.LoadInt64(&s.metrics.suspiciousRequests))

	fmt.Fprintf(w, "# HELP uptime_seconds Seconds since the server started.\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.appMetrics.startedAt).Seconds())
}
