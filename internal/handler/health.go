package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db    HealthChecker
	cache HealthChecker
	now   func() time.Time
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for db or cache if they are not configured.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, now: time.Now}
}

// HealthResponse represents the readiness response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DatabaseHealth is the body of GET /api/health.
type DatabaseHealth struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// Healthz is the liveness probe. No dependency checks.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Database reports database connectivity for load balancers.
//
// GET /api/health
func (h *HealthHandler) Database(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := DatabaseHealth{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	if h.db == nil {
		resp.Status, resp.Database, resp.Error = "unhealthy", "disconnected", "database not configured"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if err := h.db.Ping(ctx); err != nil {
		resp.Status, resp.Database, resp.Error = "unhealthy", "disconnected", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readyz checks postgres and redis concurrently and returns 200 only if
// both answer.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, 2)
	)
	record := func(name, result string) {
		mu.Lock()
		checks[name] = result
		mu.Unlock()
	}

	// Plain errgroup rather than WithContext: one failure must not cancel
	// the other probe.
	var g errgroup.Group
	for name, dep := range map[string]HealthChecker{"postgres": h.db, "redis": h.cache} {
		if dep == nil {
			record(name, "not configured")
			continue
		}
		g.Go(func() error {
			if err := dep.Ping(ctx); err != nil {
				record(name, "error: "+err.Error())
				return err
			}
			record(name, "ok")
			return nil
		})
	}

	status, code := "ok", http.StatusOK
	if err := g.Wait(); err != nil {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}
