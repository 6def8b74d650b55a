package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/faceguard/internal/alerting"
	"github.com/kozaktomas/faceguard/internal/hub"
	"github.com/kozaktomas/faceguard/internal/storage"
	"github.com/kozaktomas/faceguard/internal/vectorindex"
)

// testLogger returns a logger that discards everything.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testIndex creates a 4-dimensional index seeded with two persons.
func testIndex(t *testing.T) *vectorindex.Index {
	t.Helper()
	ix := vectorindex.New(4, 0)
	seed := []struct {
		person, embedding string
		vector            []float32
	}{
		{"p1", "e1", []float32{1, 0, 0, 0}},
		{"p1", "e2", []float32{0.9, 0.1, 0, 0}},
		{"p2", "e3", []float32{0, 1, 0, 0}},
	}
	for _, s := range seed {
		if _, err := ix.Add(s.person, s.embedding, s.vector); err != nil {
			t.Fatalf("seeding index: %v", err)
		}
	}
	return ix
}

// jsonRequest creates a request carrying a JSON-encoded body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertErrorKind checks that the response is a structured error with the
// expected error_kind.
func assertErrorKind(t *testing.T, recorder *httptest.ResponseRecorder, expectedKind string) {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if body.ErrorKind != expectedKind {
		t.Errorf("expected error_kind '%s', got '%s'", expectedKind, body.ErrorKind)
	}
	if body.Message == "" {
		t.Error("error response must carry a message")
	}
}

// stubEvaluator records evaluated events and returns canned instances.
type stubEvaluator struct {
	mu        sync.Mutex
	events    []*alerting.RecognitionEvent
	instances []storage.AlertInstance
}

func (s *stubEvaluator) Evaluate(_ context.Context, event *alerting.RecognitionEvent) []storage.AlertInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.instances
}

// stubBroadcaster records broadcast messages per topic.
type stubBroadcaster struct {
	mu       sync.Mutex
	messages []hub.Message
	topics   []string
}

func (s *stubBroadcaster) Broadcast(msg hub.Message, topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.topics = append(s.topics, topic)
	return 1
}

// stubLifecycle answers acknowledge/resolve from a canned instance or error.
type stubLifecycle struct {
	instance *storage.AlertInstance
	err      error
}

func (s *stubLifecycle) Acknowledge(context.Context, string) (*storage.AlertInstance, error) {
	return s.instance, s.err
}

func (s *stubLifecycle) Resolve(context.Context, string) (*storage.AlertInstance, error) {
	return s.instance, s.err
}

// stubEngineStatus serves fixed engine stats.
type stubEngineStatus struct {
	stats    alerting.Stats
	degraded bool
}

func (s *stubEngineStatus) Stats() alerting.Stats { return s.stats }
func (s *stubEngineStatus) Degraded() bool        { return s.degraded }

// stubHubStatus serves fixed hub stats.
type stubHubStatus struct {
	stats hub.Stats
}

func (s *stubHubStatus) Stats() hub.Stats { return s.stats }
