package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/hub"
	"github.com/kozaktomas/faceguard/internal/resolver"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// AlertEvaluator runs a recognition event through the alert rules.
// *alerting.Engine satisfies it.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, event *alerting.RecognitionEvent) []storage.AlertInstance
}

// Broadcaster fans events out to dashboard clients. *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(msg hub.Message, topic string) int
}

// SightingsHandler is the recognition webhook: it resolves the observed
// embedding to a person, runs alert rules, and fans the sighting out.
type SightingsHandler struct {
	resolver  *resolver.Resolver
	engine    AlertEvaluator
	hub       Broadcaster
	threshold float64
	logger    *slog.Logger
}

// NewSightingsHandler creates a new sightings handler.
func NewSightingsHandler(res *resolver.Resolver, engine AlertEvaluator, broadcaster Broadcaster, threshold float64, logger *slog.Logger) *SightingsHandler {
	return &SightingsHandler{
		resolver:  res,
		engine:    engine,
		hub:       broadcaster,
		threshold: threshold,
		logger:    logger,
	}
}

// SightingRequest is the payload posted by the detection pipeline for each
// observed face.
type SightingRequest struct {
	SightingID string    `json:"sighting_id"`
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"embedding"`
}

// Ingest processes one sighting end to end. Identity resolution failures on
// the embedding are the caller's fault; everything past that point is best
// effort and reported in the response.
func (h *SightingsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req SightingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, kindValidation, "embedding is required", nil)
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	match, err := h.resolver.Resolve(req.Embedding, h.threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	event := &alerting.RecognitionEvent{
		SightingID: req.SightingID,
		CameraID:   req.CameraID,
		Timestamp:  req.Timestamp,
		Confidence: req.Confidence,
		Match:      match,
	}

	instances := h.engine.Evaluate(r.Context(), event)
	alertIDs := make([]string, 0, len(instances))
	for _, instance := range instances {
		alertIDs = append(alertIDs, instance.ID)
	}

	h.broadcastSighting(&req, match)

	h.logger.Info("sighting processed",
		"sighting_id", sanitizeForLog(req.SightingID),
		"camera_id", sanitizeForLog(req.CameraID),
		"matched", match != nil,
		"alerts_triggered", len(instances),
	)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "processed",
		"match":            match,
		"alerts_triggered": len(instances),
		"alert_ids":        alertIDs,
	})
}

func (h *SightingsHandler) broadcastSighting(req *SightingRequest, match *resolver.PersonMatch) {
	data := map[string]any{
		"sighting_id": req.SightingID,
		"camera_id":   req.CameraID,
		"timestamp":   req.Timestamp.UTC().Format(time.RFC3339),
		"confidence":  req.Confidence,
		"matched":     match != nil,
	}
	if match != nil {
		data["person_id"] = match.PersonID
		data["similarity"] = match.MaxSimilarity
	}
	h.hub.Broadcast(hub.SightingMessage(data), hub.TopicSightings)
}
