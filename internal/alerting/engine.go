// Package alerting is the decision engine between recognition events and
// delivered alerts: rule evaluation, cooldown, escalation, and channel
// dispatch.
package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// RuleSource is the slice of the core data client the engine needs.
type RuleSource interface {
	GetAlertRules(ctx context.Context) ([]coredata.AlertRule, error)
	CheckHighPriorityPerson(ctx context.Context, personID string) (*coredata.HighPriorityStatus, error)
	GetNotificationContacts(ctx context.Context, personID string) ([]coredata.NotificationContact, error)
}

// Notifier receives alert lifecycle transitions for realtime fan-out.
// Triggered alerts reach the dashboard through the dispatcher's dashboard
// channel; the notifier carries only the status transitions.
type Notifier interface {
	AlertAcknowledged(instance storage.AlertInstance)
	AlertResolved(instance storage.AlertInstance)
}

// Stats are the engine's running counters.
type Stats struct {
	SightingsProcessed int64     `json:"sightings_processed"`
	RulesEvaluated     int64     `json:"rules_evaluated"`
	AlertsTriggered    int64     `json:"alerts_triggered"`
	CooldownSuppressed int64     `json:"cooldown_suppressed"`
	Escalations        int64     `json:"escalations"`
	AutoResolved       int64     `json:"auto_resolved"`
	Errors             int64     `json:"errors"`
	ActiveRules        int       `json:"active_rules"`
	Degraded           bool      `json:"degraded"`
	LastRuleRefresh    time.Time `json:"last_rule_refresh"`
}

type escalationDeadline struct {
	at       time.Time
	channels []string
}

// Engine evaluates recognition events against the cached rule set and owns
// the alert instance lifecycle. Rules are refreshed on a bounded interval;
// a refresh failure keeps the stale cache and flags the engine as degraded.
type Engine struct {
	source     RuleSource
	store      storage.InstanceStore
	dispatcher *Dispatcher
	notifier   Notifier
	logger     *slog.Logger
	cfg        config.AlertingConfig

	now func() time.Time

	rulesMu     sync.RWMutex
	rules       []coredata.AlertRule
	degraded    bool
	lastRefresh time.Time

	// pairLocks linearizes instance creation per (rule, subject) pair so
	// two concurrent evaluations cannot both pass the cooldown check.
	pairMu        sync.Mutex
	pairLocks     map[string]*sync.Mutex
	cooldownMu    sync.Mutex
	cooldownUntil map[string]time.Time

	deadlineMu    sync.Mutex
	escalateAt    map[string]escalationDeadline
	autoResolveAt map[string]time.Time

	statsMu sync.Mutex
	stats   Stats
}

// NewEngine creates a decision engine. notifier may be nil.
func NewEngine(source RuleSource, store storage.InstanceStore, dispatcher *Dispatcher, notifier Notifier, cfg config.AlertingConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:        source,
		store:         store,
		dispatcher:    dispatcher,
		notifier:      notifier,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
		pairLocks:     make(map[string]*sync.Mutex),
		cooldownUntil: make(map[string]time.Time),
		escalateAt:    make(map[string]escalationDeadline),
		autoResolveAt: make(map[string]time.Time),
	}
}

// Run refreshes the rule cache and drives the escalation scheduler until the
// context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.RefreshRules(ctx)
	e.recoverDeadlines(ctx)

	refresh := time.NewTicker(e.cfg.RuleRefreshEvery)
	defer refresh.Stop()
	tick := time.NewTicker(e.cfg.SchedulerTick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			e.RefreshRules(ctx)
		case <-tick.C:
			e.Tick(ctx, e.now().UTC())
		}
	}
}

// RefreshRules replaces the rule cache from the record store. On failure the
// stale cache stays in place and the engine reports degraded health.
func (e *Engine) RefreshRules(ctx context.Context) {
	rules, err := e.source.GetAlertRules(ctx)

	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()

	if err != nil {
		e.degraded = true
		e.countError()
		e.logger.Error("alert rule refresh failed, keeping stale cache",
			"cached_rules", len(e.rules),
			"error", err,
		)
		return
	}

	e.rules = rules
	e.degraded = false
	e.lastRefresh = e.now().UTC()
	e.logger.Info("alert rules refreshed", "rules", len(rules))
}

// Degraded reports whether the last rule refresh failed.
func (e *Engine) Degraded() bool {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return e.degraded
}

func (e *Engine) activeRules() []coredata.AlertRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()

	active := make([]coredata.AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active
}

// Evaluate runs every active rule against the event and returns the created
// alert instances. Failures local to one rule or channel are logged and
// counted, never propagated.
func (e *Engine) Evaluate(ctx context.Context, event *RecognitionEvent) []storage.AlertInstance {
	now := e.now().UTC()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	e.statsMu.Lock()
	e.stats.SightingsProcessed++
	e.statsMu.Unlock()

	highPriority, contacts := e.checkHighPriority(ctx, event)

	var created []storage.AlertInstance
	for _, rule := range e.activeRules() {
		e.statsMu.Lock()
		e.stats.RulesEvaluated++
		e.statsMu.Unlock()

		if !matchesRule(&rule, event) {
			continue
		}

		instance := e.fireRule(ctx, &rule, event, now, highPriority)
		if instance == nil {
			continue
		}

		confirmed := e.dispatcher.Deliver(ctx, instance, instance.NotificationChannels, contacts)
		instance.NotificationCount = confirmed
		if err := e.store.Update(ctx, instance); err != nil {
			e.countError()
			e.logger.Error("alert instance update failed", "instance_id", instance.ID, "error", err)
		}

		created = append(created, *instance)
	}
	return created
}

// checkHighPriority consults the watchlist for the event's person. A record
// store failure degrades to "not high priority".
func (e *Engine) checkHighPriority(ctx context.Context, event *RecognitionEvent) (bool, []coredata.NotificationContact) {
	if event.Match == nil {
		return false, nil
	}

	status, err := e.source.CheckHighPriorityPerson(ctx, event.Match.PersonID)
	if err != nil {
		e.countError()
		e.logger.Warn("high-priority check failed", "person_id", event.Match.PersonID, "error", err)
		return false, nil
	}
	if !status.IsHighPriority {
		return false, nil
	}

	contacts, err := e.source.GetNotificationContacts(ctx, event.Match.PersonID)
	if err != nil {
		e.countError()
		e.logger.Warn("notification contacts fetch failed", "person_id", event.Match.PersonID, "error", err)
	}
	return true, contacts
}

// fireRule creates the alert instance for a matching rule, or returns nil
// when the (rule, subject) pair is still cooling down.
func (e *Engine) fireRule(ctx context.Context, rule *coredata.AlertRule, event *RecognitionEvent, now time.Time, highPriority bool) *storage.AlertInstance {
	subject := event.subjectID()
	key := rule.ID + "|" + subject

	lock := e.pairLock(key)
	lock.Lock()
	defer lock.Unlock()

	e.cooldownMu.Lock()
	until, cooling := e.cooldownUntil[key]
	e.cooldownMu.Unlock()

	if cooling && now.Before(until) {
		e.statsMu.Lock()
		e.stats.CooldownSuppressed++
		e.statsMu.Unlock()
		e.logger.Debug("alert suppressed by cooldown",
			"rule_id", rule.ID,
			"subject", subject,
			"cooldown_until", until,
		)
		return nil
	}

	cooldownMinutes := rule.CooldownMinutes
	if cooldownMinutes <= 0 {
		cooldownMinutes = e.cfg.DefaultCooldownMin
	}
	e.cooldownMu.Lock()
	e.cooldownUntil[key] = now.Add(time.Duration(cooldownMinutes) * time.Minute)
	e.cooldownMu.Unlock()

	channels := append([]string(nil), rule.NotificationChannels...)
	if highPriority {
		channels = unionChannels(channels, e.dispatcher.Channels())
	}

	personID := ""
	confidence := event.Confidence
	if event.Match != nil {
		personID = event.Match.PersonID
		if confidence == 0 {
			confidence = event.Match.MaxSimilarity
		}
	}

	instance := &storage.AlertInstance{
		ID:       uuid.NewString(),
		RuleID:   rule.ID,
		PersonID: personID,
		Priority: rule.Priority,
		Status:   storage.StatusTriggered,
		TriggerPayload: storage.TriggerPayload{
			PersonID:   personID,
			CameraID:   event.CameraID,
			Confidence: confidence,
			SightingID: event.SightingID,
			Message:    rule.Template,
		},
		NotificationChannels: channels,
		TriggeredAt:          now,
	}

	if err := e.store.Insert(ctx, instance); err != nil {
		e.countError()
		e.logger.Error("alert instance insert failed", "instance_id", instance.ID, "error", err)
	}

	e.registerDeadlines(instance, rule, now)

	e.statsMu.Lock()
	e.stats.AlertsTriggered++
	e.statsMu.Unlock()

	e.logger.Info("alert triggered",
		"instance_id", instance.ID,
		"rule_id", rule.ID,
		"person_id", personID,
		"priority", instance.Priority,
		"channels", channels,
	)
	return instance
}

func (e *Engine) registerDeadlines(instance *storage.AlertInstance, rule *coredata.AlertRule, now time.Time) {
	e.deadlineMu.Lock()
	defer e.deadlineMu.Unlock()
	if rule.EscalationMinutes > 0 {
		e.escalateAt[instance.ID] = escalationDeadline{
			at:       now.Add(time.Duration(rule.EscalationMinutes) * time.Minute),
			channels: instance.NotificationChannels,
		}
	}
	if rule.AutoResolveMinutes > 0 {
		e.autoResolveAt[instance.ID] = now.Add(time.Duration(rule.AutoResolveMinutes) * time.Minute)
	}
}

func (e *Engine) pairLock(key string) *sync.Mutex {
	e.pairMu.Lock()
	defer e.pairMu.Unlock()
	lock, ok := e.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.pairLocks[key] = lock
	}
	return lock
}

// Tick fires due escalations and auto-resolutions. Deadlines are one-shot:
// a due entry is removed before processing regardless of outcome.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.deadlineMu.Lock()
	dueEscalations := make(map[string]escalationDeadline)
	for id, deadline := range e.escalateAt {
		if !now.Before(deadline.at) {
			dueEscalations[id] = deadline
			delete(e.escalateAt, id)
		}
	}
	var dueResolves []string
	for id, at := range e.autoResolveAt {
		if !now.Before(at) {
			dueResolves = append(dueResolves, id)
			delete(e.autoResolveAt, id)
		}
	}
	e.deadlineMu.Unlock()

	for id, deadline := range dueEscalations {
		e.escalate(ctx, id, deadline, now)
	}
	for _, id := range dueResolves {
		e.autoResolve(ctx, id, now)
	}
}

// escalate emits a second, higher-priority alert referencing the original
// instance, exactly once per instance.
func (e *Engine) escalate(ctx context.Context, instanceID string, deadline escalationDeadline, now time.Time) {
	original, err := e.store.Get(ctx, instanceID)
	if err != nil {
		e.countError()
		e.logger.Error("escalation lookup failed", "instance_id", instanceID, "error", err)
		return
	}
	if original.Status != storage.StatusTriggered || original.Escalated {
		return
	}

	original.Escalated = true
	if err := e.store.Update(ctx, original); err != nil {
		e.countError()
		e.logger.Error("escalation flag update failed", "instance_id", instanceID, "error", err)
	}

	escalation := &storage.AlertInstance{
		ID:           uuid.NewString(),
		RuleID:       original.RuleID,
		PersonID:     original.PersonID,
		Priority:     escalatedPriority(original.Priority),
		Status:       storage.StatusTriggered,
		EscalationOf: original.ID,
		TriggerPayload: storage.TriggerPayload{
			PersonID:   original.TriggerPayload.PersonID,
			CameraID:   original.TriggerPayload.CameraID,
			Confidence: original.TriggerPayload.Confidence,
			SightingID: original.TriggerPayload.SightingID,
			Message:    "alert unacknowledged past escalation deadline",
		},
		NotificationChannels: deadline.channels,
		TriggeredAt:          now,
	}
	if err := e.store.Insert(ctx, escalation); err != nil {
		e.countError()
		e.logger.Error("escalation insert failed", "instance_id", escalation.ID, "error", err)
	}

	confirmed := e.dispatcher.Deliver(ctx, escalation, escalation.NotificationChannels, nil)
	escalation.NotificationCount = confirmed
	if err := e.store.Update(ctx, escalation); err != nil {
		e.countError()
		e.logger.Error("escalation update failed", "instance_id", escalation.ID, "error", err)
	}

	e.statsMu.Lock()
	e.stats.Escalations++
	e.statsMu.Unlock()

	e.logger.Warn("alert escalated",
		"instance_id", original.ID,
		"escalation_id", escalation.ID,
		"priority", escalation.Priority,
	)
}

func (e *Engine) autoResolve(ctx context.Context, instanceID string, now time.Time) {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		e.countError()
		e.logger.Error("auto-resolve lookup failed", "instance_id", instanceID, "error", err)
		return
	}
	if instance.Status != storage.StatusTriggered {
		return
	}
	if !resolveInstance(instance, now) {
		return
	}
	if err := e.store.Update(ctx, instance); err != nil {
		e.countError()
		e.logger.Error("auto-resolve update failed", "instance_id", instanceID, "error", err)
		return
	}
	e.cancelDeadlines(instanceID)
	if e.notifier != nil {
		e.notifier.AlertResolved(*instance)
	}
	e.statsMu.Lock()
	e.stats.AutoResolved++
	e.statsMu.Unlock()
	e.logger.Info("alert auto-resolved", "instance_id", instanceID)
}

// Acknowledge transitions an instance to acknowledged and cancels its pending
// escalation. Acknowledging twice returns the same state without error.
func (e *Engine) Acknowledge(ctx context.Context, instanceID string) (*storage.AlertInstance, error) {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	changed, err := acknowledgeInstance(instance, e.now().UTC())
	if err != nil {
		return instance, err
	}
	if !changed {
		return instance, nil
	}

	if err := e.store.Update(ctx, instance); err != nil {
		return nil, err
	}
	e.cancelEscalation(instanceID)
	if e.notifier != nil {
		e.notifier.AlertAcknowledged(*instance)
	}
	e.logger.Info("alert acknowledged", "instance_id", instanceID)
	return instance, nil
}

// Resolve transitions an instance to resolved. Resolving twice is a no-op.
func (e *Engine) Resolve(ctx context.Context, instanceID string) (*storage.AlertInstance, error) {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if !resolveInstance(instance, e.now().UTC()) {
		return instance, nil
	}

	if err := e.store.Update(ctx, instance); err != nil {
		return nil, err
	}
	e.cancelDeadlines(instanceID)
	if e.notifier != nil {
		e.notifier.AlertResolved(*instance)
	}
	e.logger.Info("alert resolved", "instance_id", instanceID)
	return instance, nil
}

func (e *Engine) cancelEscalation(instanceID string) {
	e.deadlineMu.Lock()
	defer e.deadlineMu.Unlock()
	delete(e.escalateAt, instanceID)
}

func (e *Engine) cancelDeadlines(instanceID string) {
	e.deadlineMu.Lock()
	defer e.deadlineMu.Unlock()
	delete(e.escalateAt, instanceID)
	delete(e.autoResolveAt, instanceID)
}

// recoverDeadlines re-registers escalation and auto-resolve deadlines for
// unresolved instances after a restart, using the current rule cache.
func (e *Engine) recoverDeadlines(ctx context.Context) {
	unresolved, err := e.store.ListUnresolved(ctx)
	if err != nil {
		e.countError()
		e.logger.Error("deadline recovery failed", "error", err)
		return
	}

	rulesByID := make(map[string]coredata.AlertRule)
	for _, rule := range e.activeRules() {
		rulesByID[rule.ID] = rule
	}

	recovered := 0
	for i := range unresolved {
		instance := &unresolved[i]
		rule, ok := rulesByID[instance.RuleID]
		if !ok || instance.Status != storage.StatusTriggered || instance.Escalated {
			continue
		}
		e.registerDeadlines(instance, &rule, instance.TriggeredAt)
		recovered++
	}
	if recovered > 0 {
		e.logger.Info("recovered alert deadlines", "instances", recovered)
	}
}

// Stats returns a point-in-time copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.rulesMu.RLock()
	active := 0
	for _, rule := range e.rules {
		if rule.IsActive {
			active++
		}
	}
	degraded := e.degraded
	lastRefresh := e.lastRefresh
	e.rulesMu.RUnlock()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	stats := e.stats
	stats.ActiveRules = active
	stats.Degraded = degraded
	stats.LastRuleRefresh = lastRefresh
	return stats
}

func (e *Engine) countError() {
	e.statsMu.Lock()
	e.stats.Errors++
	e.statsMu.Unlock()
}

func unionChannels(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, channel := range extra {
		found := false
		for _, existing := range out {
			if existing == channel {
				found = true
				break
			}
		}
		if !found {
			out = append(out, channel)
		}
	}
	return out
}
