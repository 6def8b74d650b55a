package coredata

// Wire types for the core data (record store) service. The decision engine
// consumes these read-only; administration happens on the record-store side.

// TimeRange restricts a rule to a window of hours within the day. Start and
// End are hours in [0, 24); a range with Start > End wraps past midnight.
type TimeRange struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// TriggerConditions is the typed condition set of an alert rule. Empty slices
// and zero values mean "no constraint" for that dimension.
type TriggerConditions struct {
	AnyPerson             bool        `json:"any_person,omitempty"`
	PersonIDs             []string    `json:"person_ids,omitempty"`
	ExcludedPersons       []string    `json:"excluded_persons,omitempty"`
	CameraIDs             []string    `json:"camera_ids,omitempty"`
	ConfidenceMin         float64     `json:"confidence_min,omitempty"`
	ConfidenceMax         float64     `json:"confidence_max,omitempty"`
	TimeRanges            []TimeRange `json:"time_ranges,omitempty"`
	MinMatchingEmbeddings int         `json:"min_matching_embeddings,omitempty"`
}

// AlertRule is a notification rule evaluated against every recognition event.
type AlertRule struct {
	ID                   string            `json:"rule_id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description,omitempty"`
	IsActive             bool              `json:"is_active"`
	Priority             string            `json:"priority"`
	TriggerConditions    TriggerConditions `json:"trigger_conditions"`
	NotificationChannels []string          `json:"notification_channels"`
	CooldownMinutes      int               `json:"cooldown_minutes"`
	EscalationMinutes    int               `json:"escalation_minutes,omitempty"`
	AutoResolveMinutes   int               `json:"auto_resolve_minutes,omitempty"`
	Template             string            `json:"template,omitempty"`
}

// NotificationChannel describes a configured delivery channel.
type NotificationChannel struct {
	ID       string         `json:"channel_id"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	IsActive bool           `json:"is_active"`
	Config   map[string]any `json:"config,omitempty"`
}

// HighPriorityStatus is the answer of the watchlist check for a person.
type HighPriorityStatus struct {
	IsHighPriority bool   `json:"is_high_priority"`
	PriorityLevel  string `json:"priority_level,omitempty"`
}

// NotificationContact is a delivery target for high-priority overrides.
type NotificationContact struct {
	ID      string `json:"contact_id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Channel string `json:"channel"`
}

// NotificationLogEntry is appended to the record store after each delivery
// attempt.
type NotificationLogEntry struct {
	InstanceID string `json:"instance_id"`
	RuleID     string `json:"rule_id"`
	Channel    string `json:"channel"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	SentAt     string `json:"sent_at"`
}

// HealthStatus is the record store liveness answer.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}

// errorBody is the structured error payload of the record store.
type errorBody struct {
	ErrorKind string         `json:"error_kind"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}
