package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/faceguard/internal/coredata"
)

type stubUpstream struct {
	err error
}

func (s *stubUpstream) Health(context.Context) (*coredata.HealthStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &coredata.HealthStatus{Status: "ok"}, nil
}

func TestHealthOK(t *testing.T) {
	h := NewHealthHandler(&stubEngineStatus{}, &stubUpstream{})

	recorder := httptest.NewRecorder()
	h.Check(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["status"] != "ok" || resp["upstream"] != "ok" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthDegradedEngine(t *testing.T) {
	h := NewHealthHandler(&stubEngineStatus{degraded: true}, &stubUpstream{})

	recorder := httptest.NewRecorder()
	h.Check(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	// Degraded still answers 200; the flag is in the body.
	assertStatusCode(t, recorder, http.StatusOK)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
}

func TestHealthUnreachableUpstream(t *testing.T) {
	upstream := &stubUpstream{err: errors.New("connection refused")}
	h := NewHealthHandler(&stubEngineStatus{}, upstream)

	recorder := httptest.NewRecorder()
	h.Check(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["status"] != "degraded" || resp["upstream"] != "unreachable" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthWithoutUpstreamProbe(t *testing.T) {
	h := NewHealthHandler(&stubEngineStatus{}, nil)

	recorder := httptest.NewRecorder()
	h.Check(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if _, ok := resp["upstream"]; ok {
		t.Error("upstream field must be absent when no probe is configured")
	}
}
