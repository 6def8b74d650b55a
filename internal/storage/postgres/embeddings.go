package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/kozaktomas/faceguard/internal/storage"
)

// EmbeddingCacheRepository provides PostgreSQL-backed embedding caching with
// pgvector storage. The cache feeds index re-ingestion after a corrupt or
// missing snapshot.
type EmbeddingCacheRepository struct {
	pool *Pool
}

// NewEmbeddingCacheRepository creates a new PostgreSQL embedding cache.
func NewEmbeddingCacheRepository(pool *Pool) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{pool: pool}
}

// Save stores an embedding record (upsert by embedding id).
func (r *EmbeddingCacheRepository) Save(ctx context.Context, record storage.EmbeddingRecord) error {
	query := `
		INSERT INTO embedding_cache (embedding_id, owner_person_id, embedding, quality_score, is_primary, active, created_at)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7)
		ON CONFLICT (embedding_id) DO UPDATE SET
			owner_person_id = EXCLUDED.owner_person_id,
			embedding = EXCLUDED.embedding,
			quality_score = EXCLUDED.quality_score,
			is_primary = EXCLUDED.is_primary,
			active = EXCLUDED.active
	`
	vec := pgvector.NewVector(record.Vector)
	_, err := r.pool.Exec(ctx, query,
		record.EmbeddingID,
		record.OwnerPersonID,
		vec,
		record.QualityScore,
		record.IsPrimary,
		record.Active,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save embedding record: %w", err)
	}
	return nil
}

// SaveBatch saves multiple embedding records in a single transaction.
func (r *EmbeddingCacheRepository) SaveBatch(ctx context.Context, records []storage.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embedding_cache (embedding_id, owner_person_id, embedding, quality_score, is_primary, active, created_at)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7)
		ON CONFLICT (embedding_id) DO UPDATE SET
			owner_person_id = EXCLUDED.owner_person_id,
			embedding = EXCLUDED.embedding,
			quality_score = EXCLUDED.quality_score,
			is_primary = EXCLUDED.is_primary,
			active = EXCLUDED.active
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		vec := pgvector.NewVector(record.Vector)
		if _, err := stmt.ExecContext(ctx, record.EmbeddingID, record.OwnerPersonID, vec,
			record.QualityScore, record.IsPrimary, record.Active, record.CreatedAt); err != nil {
			return fmt.Errorf("insert embedding record %s: %w", record.EmbeddingID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// All returns every cached record in insertion order.
func (r *EmbeddingCacheRepository) All(ctx context.Context) ([]storage.EmbeddingRecord, error) {
	query := `
		SELECT embedding_id, owner_person_id, embedding, quality_score, is_primary, active, created_at
		FROM embedding_cache
		ORDER BY seq
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}
	defer rows.Close()

	return scanEmbeddingRecords(rows)
}

// Count returns the total number of cached records.
func (r *EmbeddingCacheRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM embedding_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embedding cache: %w", err)
	}
	return count, nil
}

// DeactivatePerson marks all of a person's cached records inactive.
func (r *EmbeddingCacheRepository) DeactivatePerson(ctx context.Context, personID string) error {
	_, err := r.pool.Exec(ctx, "UPDATE embedding_cache SET active = FALSE WHERE owner_person_id = $1", personID)
	if err != nil {
		return fmt.Errorf("deactivate person embeddings: %w", err)
	}
	return nil
}

func scanEmbeddingRecords(rows *sql.Rows) ([]storage.EmbeddingRecord, error) {
	var records []storage.EmbeddingRecord
	for rows.Next() {
		var record storage.EmbeddingRecord
		var vec pgvector.Vector
		if err := rows.Scan(
			&record.EmbeddingID,
			&record.OwnerPersonID,
			&vec,
			&record.QualityScore,
			&record.IsPrimary,
			&record.Active,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan embedding record: %w", err)
		}
		record.Vector = vec.Slice()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding records: %w", err)
	}
	return records, nil
}

// Verify interface compliance
var _ storage.EmbeddingCache = (*EmbeddingCacheRepository)(nil)
