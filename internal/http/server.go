// Package http exposes the JSON API: template CRUD, explicit and batch
// materialization, expense queries, month summaries and currency
// conversion.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"scadenze/internal/cache"
	"scadenze/internal/core"
	"scadenze/internal/rates"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// appMetrics tracks application counters exposed on /metrics.
type appMetrics struct {
	startedAt            time.Time
	requestsTotal        int64
	expensesMaterialized int64
	cacheHits            int64
	cacheMisses          int64
}

// Deps bundles everything the API server serves.
type Deps struct {
	Store        storage.Store
	Templates    *services.TemplateService
	Expenses     *services.ExpenseService
	Materializer *services.Materializer
	Processor    *services.Processor
	Reminders    *services.ReminderService
	Rates        *rates.Service
	CronToken    string
}

type Server struct {
	http.Server

	store        storage.Store
	templates    *services.TemplateService
	expenses     *services.ExpenseService
	materializer *services.Materializer
	processor    *services.Processor
	reminders    *services.ReminderService
	converter    *rates.Service
	cronToken    string

	rateLimiter *rateLimiter
	metrics     *securityMetrics
	appMetrics  *appMetrics

	// Month summaries are expensive to recompute on every dashboard
	// poll. Mutations invalidate the months they can name; the short
	// TTL catches everything else.
	summaryCache *cache.LRUCache[core.OwnerSummary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		store:        deps.Store,
		templates:    deps.Templates,
		expenses:     deps.Expenses,
		materializer: deps.Materializer,
		processor:    deps.Processor,
		reminders:    deps.Reminders,
		converter:    deps.Rates,
		cronToken:    deps.CronToken,

		rateLimiter:  newRateLimiter(),
		metrics:      &securityMetrics{},
		appMetrics:   &appMetrics{startedAt: time.Now()},
		summaryCache: cache.NewLRUCache[core.OwnerSummary](200, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.observe)
	api.HandleFunc("/templates", s.handleListTemplates).Methods(http.MethodGet)
	api.HandleFunc("/templates", s.handleCreateTemplate).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}", s.handleGetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}", s.handleUpdateTemplate).Methods(http.MethodPut)
	api.HandleFunc("/templates/{id}", s.handleDeleteTemplate).Methods(http.MethodDelete)
	api.HandleFunc("/templates/{id}/materialize", s.handleMaterialize).Methods(http.MethodPost)
	api.HandleFunc("/process-due", s.handleProcessDue).Methods(http.MethodPost)
	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses/export", s.handleExportExpenses).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.handleMonthSummary).Methods(http.MethodGet)
	api.HandleFunc("/rates/convert", s.handleConvert).Methods(http.MethodGet)
	api.HandleFunc("/cron/run", s.handleCronRun).Methods(http.MethodPost)

	s.Server = http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	return s
}

// observe adds request logging, security headers and rate limiting to
// every API route.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		if detectSuspiciousRequest(r, s.metrics) {
			slog.WarnContext(ctx, "Suspicious request pattern",
				"request_id", requestID,
				"client_ip", clientIP,
				"url", r.URL.String())
		}

		if isMutation(r.Method) && !s.rateLimiter.allow(clientIP, s.metrics) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP,
				"method", r.Method,
				"url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, please retry later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		atomic.AddInt64(&s.appMetrics.requestsTotal, 1)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	})
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func summaryKey(owner uuid.UUID, year, month int) string {
	return owner.String() + "-" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// invalidateSummary drops one owner-month from the cache. Mutations
// touching months they cannot name rely on the TTL instead.
func (s *Server) invalidateSummary(owner uuid.UUID, year, month int) {
	s.summaryCache.Delete(summaryKey(owner, year, month))
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
