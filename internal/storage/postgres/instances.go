package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// InstanceRepository provides PostgreSQL-backed alert instance storage.
type InstanceRepository struct {
	pool *Pool
}

// NewInstanceRepository creates a new PostgreSQL instance repository.
func NewInstanceRepository(pool *Pool) *InstanceRepository {
	return &InstanceRepository{pool: pool}
}

const instanceColumns = `
	instance_id, rule_id, person_id, priority, status, trigger_payload,
	notification_channels, notification_count, escalated, escalation_of,
	triggered_at, acknowledged_at, resolved_at
`

func (r *InstanceRepository) Insert(ctx context.Context, instance *storage.AlertInstance) error {
	payload, err := json.Marshal(instance.TriggerPayload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}

	query := `
		INSERT INTO alert_instances (` + instanceColumns + `)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		instance.ID,
		instance.RuleID,
		instance.PersonID,
		instance.Priority,
		string(instance.Status),
		payload,
		pq.Array(instance.NotificationChannels),
		instance.NotificationCount,
		instance.Escalated,
		instance.EscalationOf,
		instance.TriggeredAt,
		instance.AcknowledgedAt,
		instance.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) Get(ctx context.Context, id string) (*storage.AlertInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM alert_instances WHERE instance_id = $1`
	instance, err := scanInstance(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query alert instance: %w", err)
	}
	return instance, nil
}

func (r *InstanceRepository) Update(ctx context.Context, instance *storage.AlertInstance) error {
	payload, err := json.Marshal(instance.TriggerPayload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}

	query := `
		UPDATE alert_instances SET
			status = $2,
			trigger_payload = $3,
			notification_channels = $4,
			notification_count = $5,
			escalated = $6,
			acknowledged_at = $7,
			resolved_at = $8
		WHERE instance_id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		instance.ID,
		string(instance.Status),
		payload,
		pq.Array(instance.NotificationChannels),
		instance.NotificationCount,
		instance.Escalated,
		instance.AcknowledgedAt,
		instance.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("update alert instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert instance: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instance.ID)
	}
	return nil
}

func (r *InstanceRepository) List(ctx context.Context, status storage.AlertStatus, limit int) ([]storage.AlertInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM alert_instances`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY triggered_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

func (r *InstanceRepository) ListUnresolved(ctx context.Context) ([]storage.AlertInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM alert_instances
		WHERE status != 'resolved'
		ORDER BY triggered_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unresolved instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*storage.AlertInstance, error) {
	var instance storage.AlertInstance
	var personID, escalationOf sql.NullString
	var payload []byte
	var channels pq.StringArray
	var acknowledgedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.RuleID,
		&personID,
		&instance.Priority,
		&instance.Status,
		&payload,
		&channels,
		&instance.NotificationCount,
		&instance.Escalated,
		&escalationOf,
		&instance.TriggeredAt,
		&acknowledgedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.PersonID = personID.String
	instance.EscalationOf = escalationOf.String
	instance.NotificationChannels = channels
	if acknowledgedAt.Valid {
		ts := acknowledgedAt.Time
		instance.AcknowledgedAt = &ts
	}
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		instance.ResolvedAt = &ts
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &instance.TriggerPayload); err != nil {
			return nil, fmt.Errorf("unmarshal trigger payload: %w", err)
		}
	}
	return &instance, nil
}

func scanInstances(rows *sql.Rows) ([]storage.AlertInstance, error) {
	var instances []storage.AlertInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert instance: %w", err)
		}
		instances = append(instances, *instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert instances: %w", err)
	}
	return instances, nil
}

// Verify interface compliance
var _ storage.InstanceStore = (*InstanceRepository)(nil)
