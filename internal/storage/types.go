// Package storage defines the persistence types and interfaces for alert
// instances and the local embedding cache. The cache exists so the index can
// be re-ingested after a corrupt snapshot without a round trip to the record
// store.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInstanceNotFound marks a lookup of an unknown alert instance id.
var ErrInstanceNotFound = errors.New("storage: alert instance not found")

// AlertStatus is the lifecycle state of an alert instance.
type AlertStatus string

const (
	StatusTriggered    AlertStatus = "triggered"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// TriggerPayload captures the recognition event that fired a rule.
type TriggerPayload struct {
	PersonID   string  `json:"person_id,omitempty"`
	CameraID   string  `json:"camera_id,omitempty"`
	Confidence float64 `json:"confidence"`
	SightingID string  `json:"sighting_id,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// AlertInstance is a fired alert. Instances are never deleted, only
// transitioned to resolved.
type AlertInstance struct {
	ID                   string         `json:"instance_id"`
	RuleID               string         `json:"rule_id"`
	PersonID             string         `json:"person_id,omitempty"`
	Priority             string         `json:"priority"`
	Status               AlertStatus    `json:"status"`
	TriggerPayload       TriggerPayload `json:"trigger_payload"`
	NotificationChannels []string       `json:"notification_channels"`
	NotificationCount    int            `json:"notification_count"`
	Escalated            bool           `json:"escalated"`
	EscalationOf         string         `json:"escalation_of,omitempty"`
	TriggeredAt          time.Time      `json:"triggered_at"`
	AcknowledgedAt       *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt           *time.Time     `json:"resolved_at,omitempty"`
}

// EmbeddingRecord is a cached face embedding, mirroring what was added to the
// in-memory index.
type EmbeddingRecord struct {
	EmbeddingID   string    `json:"embedding_id"`
	OwnerPersonID string    `json:"owner_person_id"`
	Vector        []float32 `json:"vector"`
	QualityScore  float64   `json:"quality_score"`
	IsPrimary     bool      `json:"is_primary"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// InstanceStore persists alert instances.
type InstanceStore interface {
	Insert(ctx context.Context, instance *AlertInstance) error
	Get(ctx context.Context, id string) (*AlertInstance, error)
	Update(ctx context.Context, instance *AlertInstance) error
	// List returns instances newest first, optionally filtered by status.
	// limit <= 0 means no limit.
	List(ctx context.Context, status AlertStatus, limit int) ([]AlertInstance, error)
	// ListUnresolved returns every instance not yet resolved, oldest first,
	// for scheduler recovery after a restart.
	ListUnresolved(ctx context.Context) ([]AlertInstance, error)
}

// EmbeddingCache persists embeddings for index re-ingestion.
type EmbeddingCache interface {
	Save(ctx context.Context, record EmbeddingRecord) error
	SaveBatch(ctx context.Context, records []EmbeddingRecord) error
	// All returns records in insertion order so re-ingestion reproduces
	// index positions.
	All(ctx context.Context) ([]EmbeddingRecord, error)
	Count(ctx context.Context) (int, error)
	DeactivatePerson(ctx context.Context, personID string) error
}
