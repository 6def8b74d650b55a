package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/storage"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
)

// Error kinds carried in the error_kind field of error bodies.
const (
	kindValidation = "validation_error"
	kindNotFound   = "not_found"
	kindUpstream   = "upstream_unavailable"
	kindInternal   = "internal_error"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// errorBody is the wire shape of every error response.
type errorBody struct {
	ErrorKind string         `json:"error_kind"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends a structured error response.
func respondError(w http.ResponseWriter, status int, kind, message string, details map[string]any) {
	respondJSON(w, status, errorBody{ErrorKind: kind, Message: message, Details: details})
}

// respondDomainError maps a domain error onto the HTTP error taxonomy:
// 400 validation, 404 not found, 503 upstream unavailable, 500 otherwise.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vectorindex.ErrDimensionMismatch):
		respondError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
	case errors.Is(err, alerting.ErrAlreadyResolved):
		respondError(w, http.StatusBadRequest, kindValidation, err.Error(), nil)
	case errors.Is(err, storage.ErrInstanceNotFound), errors.Is(err, coredata.ErrNotFound):
		respondError(w, http.StatusNotFound, kindNotFound, err.Error(), nil)
	case errors.Is(err, coredata.ErrUpstreamUnavailable):
		respondError(w, http.StatusServiceUnavailable, kindUpstream, err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, kindInternal, err.Error(), nil)
	}
}

// decodeJSONBody decodes a request body into target, answering malformed
// JSON with a uniform validation error.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		respondError(w, http.StatusBadRequest, kindValidation, errInvalidRequestBody, nil)
		return false
	}
	return true
}
