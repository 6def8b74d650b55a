package alerting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/storage"
)

type stubSource struct {
	mu           sync.Mutex
	rules        []coredata.AlertRule
	rulesErr     error
	highPriority map[string]string // person id -> priority level
	contacts     []coredata.NotificationContact
	logEntries   []coredata.NotificationLogEntry
}

func (s *stubSource) GetAlertRules(context.Context) ([]coredata.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	return append([]coredata.AlertRule(nil), s.rules...), nil
}

func (s *stubSource) CheckHighPriorityPerson(_ context.Context, personID string) (*coredata.HighPriorityStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, ok := s.highPriority[personID]
	return &coredata.HighPriorityStatus{IsHighPriority: ok, PriorityLevel: level}, nil
}

func (s *stubSource) GetNotificationContacts(context.Context, string) ([]coredata.NotificationContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts, nil
}

func (s *stubSource) AppendNotificationLog(_ context.Context, entry coredata.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logEntries = append(s.logEntries, entry)
	return nil
}

func (s *stubSource) setRulesErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rulesErr = err
}

type recordingSender struct {
	name string
	fail bool

	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) Send(_ context.Context, instance *storage.AlertInstance, _ []coredata.NotificationContact) error {
	if r.fail {
		return errors.New("send failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, instance.ID)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type recordingNotifier struct {
	mu           sync.Mutex
	acknowledged []storage.AlertInstance
	resolved     []storage.AlertInstance
}

func (n *recordingNotifier) AlertAcknowledged(instance storage.AlertInstance) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acknowledged = append(n.acknowledged, instance)
}

func (n *recordingNotifier) AlertResolved(instance storage.AlertInstance) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, instance)
}

type engineFixture struct {
	engine    *Engine
	source    *stubSource
	store     *storage.MemoryStore
	dashboard *recordingSender
	email     *recordingSender
	sms       *recordingSender
	notifier  *recordingNotifier
	clock     time.Time
	clockMu   sync.Mutex
}

func (f *engineFixture) advance(d time.Duration) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.clock = f.clock.Add(d)
}

func newEngineFixture(t *testing.T, rules []coredata.AlertRule) *engineFixture {
	t.Helper()

	f := &engineFixture{
		source:    &stubSource{rules: rules, highPriority: map[string]string{}},
		store:     storage.NewMemoryStore(),
		dashboard: &recordingSender{name: "dashboard"},
		email:     &recordingSender{name: "email"},
		sms:       &recordingSender{name: "sms"},
		notifier:  &recordingNotifier{},
		clock:     time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := NewDispatcher([]Sender{f.dashboard, f.email, f.sms}, f.source, logger)
	cfg := config.AlertingConfig{
		MatchThreshold:     0.6,
		SearchK:            100,
		RuleRefreshEvery:   time.Minute,
		SchedulerTick:      30 * time.Second,
		DefaultCooldownMin: 30,
	}

	f.engine = NewEngine(f.source, f.store, dispatcher, f.notifier, cfg, logger)
	f.engine.now = func() time.Time {
		f.clockMu.Lock()
		defer f.clockMu.Unlock()
		return f.clock
	}
	f.engine.RefreshRules(context.Background())
	return f
}

func watchlistRule() coredata.AlertRule {
	return coredata.AlertRule{
		ID:                   "r1",
		Name:                 "watchlist",
		IsActive:             true,
		Priority:             "high",
		TriggerConditions:    coredata.TriggerConditions{PersonIDs: []string{"p1"}},
		NotificationChannels: []string{"dashboard"},
		CooldownMinutes:      30,
	}
}

func TestEvaluateTriggersMatchingRule(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{watchlistRule()})
	ctx := context.Background()

	created := f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.92, f.clock))
	if len(created) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(created))
	}

	instance := created[0]
	if instance.Status != storage.StatusTriggered {
		t.Errorf("Status = %s, want triggered", instance.Status)
	}
	if instance.RuleID != "r1" || instance.PersonID != "p1" {
		t.Errorf("unexpected instance identity: %+v", instance)
	}
	if instance.NotificationCount != 1 {
		t.Errorf("NotificationCount = %d, want 1 confirmed dashboard send", instance.NotificationCount)
	}

	stored, err := f.store.Get(ctx, instance.ID)
	if err != nil {
		t.Fatalf("instance not persisted: %v", err)
	}
	if stored.TriggerPayload.CameraID != "cam1" {
		t.Errorf("payload camera = %s, want cam1", stored.TriggerPayload.CameraID)
	}

	if f.dashboard.count() != 1 {
		t.Errorf("dashboard sender saw %d sends, want 1", f.dashboard.count())
	}
	if len(f.source.logEntries) != 1 || f.source.logEntries[0].Status != "sent" {
		t.Errorf("unexpected notification log: %+v", f.source.logEntries)
	}
}

func TestNonMatchingEventCreatesNothing(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{watchlistRule()})

	created := f.engine.Evaluate(context.Background(), eventFor("p9", "cam1", 0.92, f.clock))
	if len(created) != 0 {
		t.Fatalf("expected no instances, got %d", len(created))
	}
	stats := f.engine.Stats()
	if stats.SightingsProcessed != 1 || stats.AlertsTriggered != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCooldownSuppressesSecondFire(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{watchlistRule()})
	ctx := context.Background()

	first := f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.92, f.clock))
	f.advance(5 * time.Minute)
	second := f.engine.Evaluate(ctx, eventFor("p1", "cam2", 0.88, f.clock))

	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("expected exactly one instance across both evaluations, got %d and %d", len(first), len(second))
	}

	stats := f.engine.Stats()
	if stats.CooldownSuppressed != 1 {
		t.Errorf("CooldownSuppressed = %d, want 1", stats.CooldownSuppressed)
	}

	// Past the cooldown window the pair fires again.
	f.advance(30 * time.Minute)
	third := f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.95, f.clock))
	if len(third) != 1 {
		t.Fatalf("expected a new instance after cooldown expiry, got %d", len(third))
	}
}

func TestConcurrentEvaluationsCreateOneInstance(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{watchlistRule()})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = len(f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.9, f.clock)))
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range results {
		total += n
	}
	if total != 1 {
		t.Fatalf("concurrent evaluations created %d instances, want 1", total)
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{watchlistRule()})
	ctx := context.Background()

	created := f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.92, f.clock))
	id := created[0].ID

	first, err := f.engine.Acknowledge(ctx, id)
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if first.Status != storage.StatusAcknowledged || first.AcknowledgedAt == nil {
		t.Fatalf("unexpected state after ack: %+v", first)
	}

	second, err := f.engine.Acknowledge(ctx, id)
	if err != nil {
		t.Fatalf("second Acknowledge failed: %v", err)
	}
	if !second.AcknowledgedAt.Equal(*first.AcknowledgedAt) {
		t.Errorf("second ack changed the timestamp: %v vs %v", second.AcknowledgedAt, first.AcknowledgedAt)
	}

	if _, err := f.engine.Resolve(ctx, id); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := f.engine.Acknowledge(ctx, id); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved for ack on resolved, got %v", err)
	}

	if _, err := f.engine.Acknowledge(ctx, "missing"); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func escalatingRule() coredata.AlertRule {
	rule := watchlistRule()
	rule.EscalationMinutes = 5
	return rule
}

func TestEscalationFiresExactlyOnce(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{escalatingRule()})
	ctx := context.Background()

	created := f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.92, f.clock))
	originalID := created[0].ID

	// Before the deadline nothing happens.
	f.advance(2 * time.Minute)
	f.engine.Tick(ctx, f.clock)
	if got := f.engine.Stats().Escalations; got != 0 {
		t.Fatalf("escalated before deadline, count %d", got)
	}

	f.advance(4 * time.Minute)
	f.engine.Tick(ctx, f.clock)

	stats := f.engine.Stats()
	if stats.Escalations != 1 {
		t.Fatalf("Escalations = %d, want 1", stats.Escalations)
	}

	all, err := f.store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected original + escalation, got %d instances", len(all))
	}

	var escalation *storage.AlertInstance
	for i := range all {
		if all[i].EscalationOf == originalID {
			escalation = &all[i]
		}
	}
	if escalation == nil {
		t.Fatal("no escalation instance referencing the original")
	}
	if escalation.Priority != "critical" {
		t.Errorf("escalation priority = %s, want critical (bumped from high)", escalation.Priority)
	}

	original, err := f.store.Get(ctx, originalID)
	if err != nil {
		t.Fatalf("Get original failed: %v", err)
	}
	if !original.Escalated {
		t.Error("original instance should be flagged escalated")
	}

	// A later tick must not escalate again.
	f.advance(10 * time.Minute)
	f.engine.Tick(ctx, f.clock)
	if got := f.engine.Stats().Escalations; got != 1 {
		t.Errorf("escalation fired twice, count %d", got)
	}
}

func TestAcknowledgeCancelsEscalation(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{escalatingRule()})
	ctx := context.Background()

	created := f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.92, f.clock))
	if _, err := f.engine.Acknowledge(ctx, created[0].ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	f.advance(10 * time.Minute)
	f.engine.Tick(ctx, f.clock)

	if got := f.engine.Stats().Escalations; got != 0 {
		t.Errorf("acknowledged instance escalated, count %d", got)
	}
}

func TestAutoResolveAfterDeadline(t *testing.T) {
	rule := watchlistRule()
	rule.AutoResolveMinutes = 10
	f := newEngineFixture(t, []coredata.AlertRule{rule})
	ctx := context.Background()

	created := f.engine.Evaluate(ctx, eventFor("p1", "cam1", 0.92, f.clock))

	f.advance(11 * time.Minute)
	f.engine.Tick(ctx, f.clock)

	instance, err := f.store.Get(ctx, created[0].ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if instance.Status != storage.StatusResolved || instance.ResolvedAt == nil {
		t.Errorf("expected auto-resolved instance, got %+v", instance)
	}
	if len(f.notifier.resolved) != 1 {
		t.Errorf("notifier saw %d resolves, want 1", len(f.notifier.resolved))
	}
}

func TestHighPriorityOverrideIsAdditive(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{watchlistRule()})
	f.source.highPriority["p1"] = "critical"
	f.source.contacts = []coredata.NotificationContact{{ID: "c1", Name: "ops", Channel: "sms", Phone: "+1555"}}

	created := f.engine.Evaluate(context.Background(), eventFor("p1", "cam1", 0.92, f.clock))
	if len(created) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(created))
	}

	channels := created[0].NotificationChannels
	for _, want := range []string{"dashboard", "email", "sms"} {
		found := false
		for _, got := range channels {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("override should include channel %s, got %v", want, channels)
		}
	}
	if created[0].NotificationCount != 3 {
		t.Errorf("NotificationCount = %d, want 3 confirmed sends", created[0].NotificationCount)
	}
}

func TestChannelFailureIsIsolated(t *testing.T) {
	rule := watchlistRule()
	rule.NotificationChannels = []string{"dashboard", "email", "sms"}
	f := newEngineFixture(t, []coredata.AlertRule{rule})
	f.email.fail = true

	created := f.engine.Evaluate(context.Background(), eventFor("p1", "cam1", 0.92, f.clock))
	if len(created) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(created))
	}

	if created[0].NotificationCount != 2 {
		t.Errorf("NotificationCount = %d, want 2 (email failed)", created[0].NotificationCount)
	}
	if f.dashboard.count() != 1 || f.sms.count() != 1 {
		t.Error("failing channel blocked delivery to the others")
	}
}

func TestRefreshFailureKeepsStaleCache(t *testing.T) {
	f := newEngineFixture(t, []coredata.AlertRule{watchlistRule()})

	f.source.setRulesErr(errors.New("record store down"))
	f.engine.RefreshRules(context.Background())

	if !f.engine.Degraded() {
		t.Fatal("engine should report degraded after a failed refresh")
	}

	// The stale cache still evaluates.
	created := f.engine.Evaluate(context.Background(), eventFor("p1", "cam1", 0.92, f.clock))
	if len(created) != 1 {
		t.Fatalf("stale cache should still fire rules, got %d instances", len(created))
	}

	f.source.setRulesErr(nil)
	f.engine.RefreshRules(context.Background())
	if f.engine.Degraded() {
		t.Error("successful refresh should clear degraded state")
	}
}

func TestInactiveRulesAreSkipped(t *testing.T) {
	rule := watchlistRule()
	rule.IsActive = false
	f := newEngineFixture(t, []coredata.AlertRule{rule})

	created := f.engine.Evaluate(context.Background(), eventFor("p1", "cam1", 0.92, f.clock))
	if len(created) != 0 {
		t.Fatalf("inactive rule fired, got %d instances", len(created))
	}
}
