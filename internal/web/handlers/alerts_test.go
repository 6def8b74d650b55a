package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/storage"
)

func seedInstances(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []storage.AlertInstance{
		{ID: "i1", RuleID: "r1", Status: storage.StatusTriggered, Priority: "high", TriggeredAt: base},
		{ID: "i2", RuleID: "r1", Status: storage.StatusAcknowledged, Priority: "high", TriggeredAt: base.Add(time.Minute)},
		{ID: "i3", RuleID: "r2", Status: storage.StatusResolved, Priority: "low", TriggeredAt: base.Add(2 * time.Minute)},
	}
	for i := range seed {
		if err := store.Insert(context.Background(), &seed[i]); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}
	return store
}

func TestAlertsList(t *testing.T) {
	h := NewAlertsHandler(seedInstances(t), &stubLifecycle{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Alerts []storage.AlertInstance `json:"alerts"`
		Count  int                     `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 3 {
		t.Fatalf("count = %d, want 3", resp.Count)
	}
	// Newest first.
	if resp.Alerts[0].ID != "i3" || resp.Alerts[2].ID != "i1" {
		t.Errorf("unexpected order: %s, %s, %s", resp.Alerts[0].ID, resp.Alerts[1].ID, resp.Alerts[2].ID)
	}
}

func TestAlertsListFilteredByStatus(t *testing.T) {
	h := NewAlertsHandler(seedInstances(t), &stubLifecycle{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?status=triggered", nil)
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Alerts []storage.AlertInstance `json:"alerts"`
	}
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Alerts) != 1 || resp.Alerts[0].ID != "i1" {
		t.Errorf("filtered alerts = %+v, want only i1", resp.Alerts)
	}
}

func TestAlertsListRejectsBadQuery(t *testing.T) {
	h := NewAlertsHandler(seedInstances(t), &stubLifecycle{}, testLogger())

	for _, path := range []string{
		"/api/v1/alerts?status=exploded",
		"/api/v1/alerts?limit=-1",
		"/api/v1/alerts?limit=ten",
	} {
		recorder := httptest.NewRecorder()
		h.List(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		assertStatusCode(t, recorder, http.StatusBadRequest)
		assertErrorKind(t, recorder, kindValidation)
	}
}

func TestAlertsGet(t *testing.T) {
	h := NewAlertsHandler(seedInstances(t), &stubLifecycle{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/i2", nil)
	req = requestWithChiParams(req, map[string]string{"instanceID": "i2"})
	recorder := httptest.NewRecorder()
	h.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var instance storage.AlertInstance
	parseJSONResponse(t, recorder, &instance)
	if instance.ID != "i2" || instance.Status != storage.StatusAcknowledged {
		t.Errorf("instance = %+v", instance)
	}
}

func TestAlertsGetNotFound(t *testing.T) {
	h := NewAlertsHandler(seedInstances(t), &stubLifecycle{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/ghost", nil)
	req = requestWithChiParams(req, map[string]string{"instanceID": "ghost"})
	recorder := httptest.NewRecorder()
	h.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertErrorKind(t, recorder, kindNotFound)
}

func TestAlertsAcknowledge(t *testing.T) {
	now := time.Now().UTC()
	lifecycle := &stubLifecycle{instance: &storage.AlertInstance{
		ID: "i1", Status: storage.StatusAcknowledged, AcknowledgedAt: &now,
	}}
	h := NewAlertsHandler(seedInstances(t), lifecycle, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/i1/acknowledge", nil)
	req = requestWithChiParams(req, map[string]string{"instanceID": "i1"})
	recorder := httptest.NewRecorder()
	h.Acknowledge(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var instance storage.AlertInstance
	parseJSONResponse(t, recorder, &instance)
	if instance.Status != storage.StatusAcknowledged {
		t.Errorf("status = %s, want acknowledged", instance.Status)
	}
}

func TestAlertsAcknowledgeErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{
			"unknown instance",
			fmt.Errorf("lookup: %w", storage.ErrInstanceNotFound),
			http.StatusNotFound, kindNotFound,
		},
		{
			"already resolved",
			alerting.ErrAlreadyResolved,
			http.StatusBadRequest, kindValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAlertsHandler(seedInstances(t), &stubLifecycle{err: tt.err}, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/i1/acknowledge", nil)
			req = requestWithChiParams(req, map[string]string{"instanceID": "i1"})
			recorder := httptest.NewRecorder()
			h.Acknowledge(recorder, req)

			assertStatusCode(t, recorder, tt.wantStatus)
			assertErrorKind(t, recorder, tt.wantKind)
		})
	}
}

func TestAlertsResolve(t *testing.T) {
	now := time.Now().UTC()
	lifecycle := &stubLifecycle{instance: &storage.AlertInstance{
		ID: "i1", Status: storage.StatusResolved, ResolvedAt: &now,
	}}
	h := NewAlertsHandler(seedInstances(t), lifecycle, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/i1/resolve", nil)
	req = requestWithChiParams(req, map[string]string{"instanceID": "i1"})
	recorder := httptest.NewRecorder()
	h.Resolve(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var instance storage.AlertInstance
	parseJSONResponse(t, recorder, &instance)
	if instance.Status != storage.StatusResolved {
		t.Errorf("status = %s, want resolved", instance.Status)
	}
}
