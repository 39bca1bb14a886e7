package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mverkuijl/babbelbox/internal/store"
)

// HealthHandler reports process and database health.
type HealthHandler struct {
	repo    store.Repository
	started time.Time
	version string
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(repo store.Repository, version string) *HealthHandler {
	return &HealthHandler{repo: repo, started: time.Now(), version: version}
}

// RegisterRoutes registers the detailed health endpoint. The cheap liveness
// probe at /health is served by chi's Heartbeat middleware.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK
	if err := h.repo.Ping(r.Context()); err != nil {
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, map[string]interface{}{
		"status":   dbStatus,
		"version":  h.version,
		"uptime_s": int(time.Since(h.started).Seconds()),
	})
}
