package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the liveness endpoint. The response names the
// operating mode so a probe can tell which process flavor it reached.
type HealthHandler struct {
	mode    string
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler for the given operating mode.
func NewHealthHandler(mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:    mode,
		started: time.Now().UTC(),
		logger:  logHandler(logger, "health"),
	}
}

// HealthCheck reports liveness, mode, and uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   h.mode,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}
