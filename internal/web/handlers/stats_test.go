package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/hub"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
)

func TestStatsGet(t *testing.T) {
	engine := &stubEngineStatus{stats: alerting.Stats{
		SightingsProcessed: 10,
		AlertsTriggered:    2,
		ActiveRules:        3,
	}}
	hubStatus := &stubHubStatus{stats: hub.Stats{ActiveConnections: 1, MessagesSent: 5}}
	h := NewStatsHandler(testIndex(t), engine, hubStatus, "", testLogger())

	recorder := httptest.NewRecorder()
	h.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Index  vectorindex.Stats `json:"index"`
		Engine alerting.Stats    `json:"engine"`
		Hub    hub.Stats         `json:"hub"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Index.Size != 3 || resp.Index.UniquePersons != 2 {
		t.Errorf("index stats = %+v", resp.Index)
	}
	if resp.Engine.SightingsProcessed != 10 || resp.Engine.AlertsTriggered != 2 {
		t.Errorf("engine stats = %+v", resp.Engine)
	}
	if resp.Hub.ActiveConnections != 1 {
		t.Errorf("hub stats = %+v", resp.Hub)
	}
}

func TestIndexStats(t *testing.T) {
	h := NewStatsHandler(testIndex(t), &stubEngineStatus{}, &stubHubStatus{}, "", testLogger())

	recorder := httptest.NewRecorder()
	h.IndexStats(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/index/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var stats vectorindex.Stats
	parseJSONResponse(t, recorder, &stats)
	if stats.Dim != 4 || stats.ActiveSize != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSnapshotWithoutConfiguredPath(t *testing.T) {
	h := NewStatsHandler(testIndex(t), &stubEngineStatus{}, &stubHubStatus{}, "", testLogger())

	recorder := httptest.NewRecorder()
	h.Snapshot(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/index/snapshot", nil))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorKind(t, recorder, kindValidation)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	ix := testIndex(t)
	h := NewStatsHandler(ix, &stubEngineStatus{}, &stubHubStatus{}, path, testLogger())

	recorder := httptest.NewRecorder()
	h.Snapshot(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/index/snapshot", nil))

	assertStatusCode(t, recorder, http.StatusOK)

	var resp map[string]any
	parseJSONResponse(t, recorder, &resp)
	if resp["status"] != "saved" || resp["vectors"] != float64(3) {
		t.Errorf("response = %+v", resp)
	}

	// The written pair loads back into an equivalent index.
	restored := vectorindex.New(4, 0)
	if err := restored.Load(context.Background(), path); err != nil {
		t.Fatalf("loading snapshot back: %v", err)
	}
	if restored.Size() != ix.Size() {
		t.Errorf("restored size = %d, want %d", restored.Size(), ix.Size())
	}
}

func TestStatusPayload(t *testing.T) {
	engine := &stubEngineStatus{
		stats:    alerting.Stats{ActiveRules: 4, SightingsProcessed: 7},
		degraded: true,
	}
	hubStatus := &stubHubStatus{stats: hub.Stats{ActiveConnections: 2}}
	h := NewStatsHandler(testIndex(t), engine, hubStatus, "", testLogger())

	payload := h.StatusPayload()
	if payload["degraded"] != true {
		t.Error("payload must surface the degraded flag")
	}
	if payload["index_size"] != 3 || payload["active_rules"] != 4 {
		t.Errorf("payload = %+v", payload)
	}
	if payload["connections"] != 2 {
		t.Errorf("connections = %v, want 2", payload["connections"])
	}
}
