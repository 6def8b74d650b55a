package coredata

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a 404 from the core data service. The resource does not
// exist, so the request is never retried.
var ErrNotFound = errors.New("core data: resource not found")

// ErrUpstreamUnavailable marks exhaustion of every retry attempt against the
// core data service, either from transport failures or repeated 5xx answers.
var ErrUpstreamUnavailable = errors.New("core data: upstream unavailable")

// APIError carries a non-2xx answer from the core data service. 4xx responses
// are terminal; 5xx responses surface here only after retries are exhausted.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("core data: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("core data: request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsNotFoundError returns true if the error indicates a 404 Not Found response.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
