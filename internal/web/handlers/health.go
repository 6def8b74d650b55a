package handlers

import (
	"context"
	"net/http"

	"github.com/kozaktomas/faceguard/internal/coredata"
)

// UpstreamHealth probes the record store. *coredata.Client satisfies it.
// A nil prober skips the upstream check.
type UpstreamHealth interface {
	Health(ctx context.Context) (*coredata.HealthStatus, error)
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	engine   EngineStatus
	upstream UpstreamHealth
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(engine EngineStatus, upstream UpstreamHealth) *HealthHandler {
	return &HealthHandler{engine: engine, upstream: upstream}
}

// Check reports service health. The service answers 200 even when degraded;
// degraded means the rule cache is stale, not that the service is down.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	payload := map[string]any{
		"service": "faceguard",
	}

	if h.engine != nil && h.engine.Degraded() {
		status = "degraded"
	}

	if h.upstream != nil {
		if _, err := h.upstream.Health(r.Context()); err != nil {
			status = "degraded"
			payload["upstream"] = "unreachable"
		} else {
			payload["upstream"] = "ok"
		}
	}

	payload["status"] = status
	respondJSON(w, http.StatusOK, payload)
}
