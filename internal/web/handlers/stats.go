package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/hub"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
)

// EngineStatus exposes the decision engine's counters and degraded flag.
// *alerting.Engine satisfies it.
type EngineStatus interface {
	Stats() alerting.Stats
	Degraded() bool
}

// HubStatus exposes the fan-out hub's counters. *hub.Hub satisfies it.
type HubStatus interface {
	Stats() hub.Stats
}

// StatsHandler aggregates observability numbers from every subsystem.
type StatsHandler struct {
	index        *vectorindex.Index
	engine       EngineStatus
	hub          HubStatus
	snapshotPath string
	logger       *slog.Logger
}

// NewStatsHandler creates a new stats handler. snapshotPath may be empty when
// index persistence is disabled.
func NewStatsHandler(index *vectorindex.Index, engine EngineStatus, hubStatus HubStatus, snapshotPath string, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		index:        index,
		engine:       engine,
		hub:          hubStatus,
		snapshotPath: snapshotPath,
		logger:       logger,
	}
}

// Get returns a combined view of index, engine, and hub statistics.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"index":  h.index.Stats(),
		"engine": h.engine.Stats(),
		"hub":    h.hub.Stats(),
	})
}

// IndexStats returns index statistics alone.
func (h *StatsHandler) IndexStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.index.Stats())
}

// Snapshot writes the index snapshot pair to the configured path.
func (h *StatsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshotPath == "" {
		respondError(w, http.StatusBadRequest, kindValidation,
			"index snapshot persistence is not configured", nil)
		return
	}

	if err := h.index.Save(r.Context(), h.snapshotPath); err != nil {
		h.logger.Error("index snapshot failed", "path", h.snapshotPath, "error", err)
		respondDomainError(w, err)
		return
	}

	h.logger.Info("index snapshot written", "path", h.snapshotPath, "vectors", h.index.Size())
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "saved",
		"path":    h.snapshotPath,
		"vectors": h.index.Size(),
	})
}

// StatusPayload builds the system_status_update payload served to websocket
// clients asking for request_status.
func (h *StatsHandler) StatusPayload() map[string]any {
	indexStats := h.index.Stats()
	engineStats := h.engine.Stats()
	hubStats := h.hub.Stats()
	return map[string]any{
		"degraded":            h.engine.Degraded(),
		"index_size":          indexStats.Size,
		"active_vectors":      indexStats.ActiveSize,
		"unique_persons":      indexStats.UniquePersons,
		"active_rules":        engineStats.ActiveRules,
		"alerts_triggered":    engineStats.AlertsTriggered,
		"sightings_processed": engineStats.SightingsProcessed,
		"connections":         hubStats.ActiveConnections,
	}
}
