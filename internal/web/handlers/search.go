package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceguard/internal/resolver"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
)

// SearchHandler serves raw similarity search and person resolution.
type SearchHandler struct {
	index            *vectorindex.Index
	resolver         *resolver.Resolver
	defaultThreshold float64
}

// NewSearchHandler creates a new search handler. defaultThreshold applies
// when a request does not carry its own.
func NewSearchHandler(index *vectorindex.Index, res *resolver.Resolver, defaultThreshold float64) *SearchHandler {
	return &SearchHandler{index: index, resolver: res, defaultThreshold: defaultThreshold}
}

// SearchRequest is a raw nearest-neighbor query.
type SearchRequest struct {
	Vector    []float32 `json:"vector"`
	K         int       `json:"k"`
	Threshold *float64  `json:"threshold"`
}

// Search returns the top-k most similar embeddings above the threshold.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Vector) == 0 {
		respondError(w, http.StatusBadRequest, kindValidation, "vector is required", nil)
		return
	}
	if req.K <= 0 {
		req.K = 10
	}
	threshold := h.defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	candidates, err := h.index.Search(req.Vector, req.K, threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if candidates == nil {
		candidates = []vectorindex.Candidate{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// ResolveRequest asks for the best-matching enrolled person.
type ResolveRequest struct {
	Vector    []float32 `json:"vector"`
	Threshold *float64  `json:"threshold"`
}

// Resolve aggregates per-person similarity and returns the single best match,
// or a null match when nothing clears the threshold.
func (h *SearchHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Vector) == 0 {
		respondError(w, http.StatusBadRequest, kindValidation, "vector is required", nil)
		return
	}
	threshold := h.defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	match, err := h.resolver.Resolve(req.Vector, threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"match":     match,
		"threshold": threshold,
	})
}
