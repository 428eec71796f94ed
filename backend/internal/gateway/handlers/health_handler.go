package handlers

import (
	"context"
	"net/http"
	"time"

	"lms_core/backend/internal/gateway/util"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	ServiceName string
	// Ready pings the backing store; nil means always ready
	Ready func(ctx context.Context) error
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]string{"service": h.ServiceName, "status": "ok"})
}

// Readyz handles GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			util.WriteJSONError(w, http.StatusServiceUnavailable, util.ErrUnavailable, "database unreachable")
			return
		}
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"service": h.ServiceName, "status": "ready"})
}
