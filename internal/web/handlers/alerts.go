package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// AlertLifecycle drives alert state transitions. *alerting.Engine satisfies it.
type AlertLifecycle interface {
	Acknowledge(ctx context.Context, instanceID string) (*storage.AlertInstance, error)
	Resolve(ctx context.Context, instanceID string) (*storage.AlertInstance, error)
}

// AlertsHandler serves the alert instance API.
type AlertsHandler struct {
	store     storage.InstanceStore
	lifecycle AlertLifecycle
	logger    *slog.Logger
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(store storage.InstanceStore, lifecycle AlertLifecycle, logger *slog.Logger) *AlertsHandler {
	return &AlertsHandler{store: store, lifecycle: lifecycle, logger: logger}
}

// List returns alert instances newest first, optionally filtered by status.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := storage.AlertStatus(r.URL.Query().Get("status"))
	switch status {
	case "", storage.StatusTriggered, storage.StatusAcknowledged, storage.StatusResolved:
	default:
		respondError(w, http.StatusBadRequest, kindValidation,
			"status must be one of triggered, acknowledged, resolved",
			map[string]any{"status": string(status)})
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, kindValidation,
				"limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	alerts, err := h.store.List(r.Context(), status, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if alerts == nil {
		alerts = []storage.AlertInstance{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Get returns one alert instance by id.
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request) {
	instance, err := h.store.Get(r.Context(), chi.URLParam(r, "instanceID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, instance)
}

// Acknowledge marks a triggered alert as seen and cancels its escalation.
// Acknowledging an already acknowledged alert is a no-op.
func (h *AlertsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	instance, err := h.lifecycle.Acknowledge(r.Context(), instanceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.Info("alert acknowledged", "instance_id", sanitizeForLog(instanceID))
	respondJSON(w, http.StatusOK, instance)
}

// Resolve closes an alert. Resolving an already resolved alert is a no-op.
func (h *AlertsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	instance, err := h.lifecycle.Resolve(r.Context(), instanceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.Info("alert resolved", "instance_id", sanitizeForLog(instanceID))
	respondJSON(w, http.StatusOK, instance)
}
