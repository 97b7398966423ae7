package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks the health of one backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness and dependency health.
type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler creates a HealthHandler over the named dependencies.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HealthCheck pings every dependency and reports per-dependency status. The
// response is 200 only when everything answers.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "ok"
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			overall = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
