// Package api provides the admin HTTP API for the mirror: read access to
// mirrored users, the ledger, the task queue and the dead letter queue,
// plus DLQ replay/purge and on-demand resync.
//
// Two renditions share the same routes: Handler on net/http and ForgeAPI on
// a forge router with OpenAPI metadata.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/user"
)

// defaultLimit is the page size when a listing request gives none.
const defaultLimit = 50

// Handler is the root HTTP handler for the mirror admin API.
type Handler struct {
	mirror *mirror.Mirror
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates a new admin API handler.
func NewHandler(m *mirror.Mirror, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		mirror: m,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Users
	h.mux.HandleFunc("GET /users", h.listUsers)
	h.mux.HandleFunc("GET /users/{id}", h.getUser)

	// Ledger
	h.mux.HandleFunc("GET /ledger", h.listLedger)
	h.mux.HandleFunc("GET /ledger/cursor", h.getCursor)

	// Queue
	h.mux.HandleFunc("GET /tasks", h.listTasks)
	h.mux.HandleFunc("POST /resync", h.resync)

	// DLQ
	h.mux.HandleFunc("GET /dlq", h.listDLQ)
	h.mux.HandleFunc("POST /dlq/{id}/replay", h.replayDLQ)
	h.mux.HandleFunc("DELETE /dlq", h.purgeDLQ)

	// Stats
	h.mux.HandleFunc("GET /stats", h.getStats)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError writes err with the status its sentinel maps to.
func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps mirror sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, user.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, dlq.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mirror.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// queryTime parses an RFC 3339 query parameter. ok is false when the
// parameter is absent.
func queryTime(r *http.Request, key string) (t time.Time, ok bool, err error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339, v)
	return t, true, err
}
