package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/faceguard/internal/storage"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
)

// EmbeddingsHandler manages the in-memory index and its persistent cache.
type EmbeddingsHandler struct {
	index  *vectorindex.Index
	cache  storage.EmbeddingCache
	logger *slog.Logger
}

// NewEmbeddingsHandler creates a new embeddings handler.
func NewEmbeddingsHandler(index *vectorindex.Index, cache storage.EmbeddingCache, logger *slog.Logger) *EmbeddingsHandler {
	return &EmbeddingsHandler{index: index, cache: cache, logger: logger}
}

// EmbeddingRequest is one embedding to enroll.
type EmbeddingRequest struct {
	PersonID     string    `json:"person_id"`
	EmbeddingID  string    `json:"embedding_id"`
	Vector       []float32 `json:"vector"`
	QualityScore float64   `json:"quality_score"`
	IsPrimary    bool      `json:"is_primary"`
}

func (e *EmbeddingRequest) validate() (string, map[string]any) {
	if e.PersonID == "" {
		return "person_id is required", nil
	}
	if e.EmbeddingID == "" {
		return "embedding_id is required", nil
	}
	if len(e.Vector) == 0 {
		return "vector is required", nil
	}
	return "", nil
}

// Add enrolls a single embedding into the index and the cache.
func (h *EmbeddingsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if msg, details := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, kindValidation, msg, details)
		return
	}

	position, err := h.index.Add(req.PersonID, req.EmbeddingID, req.Vector)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.cacheSave(r, req)

	respondJSON(w, http.StatusCreated, map[string]any{
		"position":   position,
		"index_size": h.index.Size(),
	})
}

// BatchRequest enrolls multiple embeddings in one call.
type BatchRequest struct {
	Embeddings []EmbeddingRequest `json:"embeddings"`
}

// AddBatch enrolls a batch of embeddings. The batch is validated up front so
// a dimension mismatch rejects the whole request instead of half-applying it.
func (h *EmbeddingsHandler) AddBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Embeddings) == 0 {
		respondError(w, http.StatusBadRequest, kindValidation, "embeddings is required", nil)
		return
	}

	dim := h.index.Dim()
	for i, emb := range req.Embeddings {
		if msg, _ := emb.validate(); msg != "" {
			respondError(w, http.StatusBadRequest, kindValidation, msg,
				map[string]any{"index": i})
			return
		}
		if len(emb.Vector) != dim {
			respondError(w, http.StatusBadRequest, kindValidation,
				fmt.Sprintf("vector dimension mismatch: got %d, want %d", len(emb.Vector), dim),
				map[string]any{"index": i})
			return
		}
	}

	records := make([]storage.EmbeddingRecord, 0, len(req.Embeddings))
	now := time.Now().UTC()
	for _, emb := range req.Embeddings {
		if _, err := h.index.Add(emb.PersonID, emb.EmbeddingID, emb.Vector); err != nil {
			respondDomainError(w, err)
			return
		}
		records = append(records, storage.EmbeddingRecord{
			EmbeddingID:   emb.EmbeddingID,
			OwnerPersonID: emb.PersonID,
			Vector:        emb.Vector,
			QualityScore:  emb.QualityScore,
			IsPrimary:     emb.IsPrimary,
			Active:        true,
			CreatedAt:     now,
		})
	}

	if h.cache != nil {
		if err := h.cache.SaveBatch(r.Context(), records); err != nil {
			h.logger.Warn("embedding cache batch save failed", "count", len(records), "error", err)
		}
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"added":      len(records),
		"index_size": h.index.Size(),
	})
}

// DeactivatePerson logically removes a person's embeddings from search.
// The vectors stay in place so index positions of others never shift.
func (h *EmbeddingsHandler) DeactivatePerson(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	if personID == "" {
		respondError(w, http.StatusBadRequest, kindValidation, "person id is required", nil)
		return
	}

	if !h.index.DeactivatePerson(personID) {
		respondError(w, http.StatusNotFound, kindNotFound,
			"person has no embeddings in the index", nil)
		return
	}

	if h.cache != nil {
		if err := h.cache.DeactivatePerson(r.Context(), personID); err != nil {
			h.logger.Warn("embedding cache deactivation failed",
				"person_id", sanitizeForLog(personID), "error", err)
		}
	}

	h.logger.Info("person deactivated", "person_id", sanitizeForLog(personID))
	respondJSON(w, http.StatusOK, map[string]any{
		"person_id":      personID,
		"active_vectors": h.index.ActiveSize(),
	})
}

// cacheSave persists one enrolled embedding. The index write already
// succeeded, so a cache failure only degrades re-ingestion and is logged.
func (h *EmbeddingsHandler) cacheSave(r *http.Request, req EmbeddingRequest) {
	if h.cache == nil {
		return
	}
	record := storage.EmbeddingRecord{
		EmbeddingID:   req.EmbeddingID,
		OwnerPersonID: req.PersonID,
		Vector:        req.Vector,
		QualityScore:  req.QualityScore,
		IsPrimary:     req.IsPrimary,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.cache.Save(r.Context(), record); err != nil {
		h.logger.Warn("embedding cache save failed",
			"embedding_id", sanitizeForLog(req.EmbeddingID), "error", err)
	}
}
