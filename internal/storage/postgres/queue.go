package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

// Enqueue appends a job and returns its msg_id.
func (s *Store) Enqueue(ctx context.Context, job *types.QueueJob) (int64, error) {
	if job == nil || job.TenantID == "" || job.EntityID == "" || job.EntityType == "" {
		return 0, fmt.Errorf("%w: tenant, entity type, and entity id are required", storage.ErrInvalidInput)
	}

	var msgID int64
	var enqueuedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO embedding_jobs (tenant_id, entity_type, entity_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING msg_id, enqueued_at
	`, job.TenantID, string(job.EntityType), job.EntityID, job.Content).Scan(&msgID, &enqueuedAt)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to enqueue job: %w", err)
	}

	job.MsgID = msgID
	job.EnqueuedAt = enqueuedAt
	return msgID, nil
}

// ReadBatch returns up to qty visible jobs, hiding each for the visibility
// timeout and incrementing its read_count. SKIP LOCKED lets multiple worker
// processes drain the queue without handing out the same job twice.
func (s *Store) ReadBatch(ctx context.Context, visibility time.Duration, qty int) ([]types.QueueJob, error) {
	if qty <= 0 {
		return []types.QueueJob{}, nil
	}
	if visibility <= 0 {
		visibility = 30 * time.Second
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE embedding_jobs
		SET visible_at = CURRENT_TIMESTAMP + $1::interval, read_count = read_count + 1
		WHERE msg_id IN (
			SELECT msg_id FROM embedding_jobs
			WHERE visible_at <= CURRENT_TIMESTAMP
			ORDER BY msg_id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING msg_id, tenant_id, entity_type, entity_id, content, enqueued_at, read_count
	`, fmt.Sprintf("%f seconds", visibility.Seconds()), qty)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to read jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []types.QueueJob{}
	for rows.Next() {
		var job types.QueueJob
		var entityType string
		if err := rows.Scan(&job.MsgID, &job.TenantID, &entityType, &job.EntityID,
			&job.Content, &job.EnqueuedAt, &job.ReadCount); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan job: %w", err)
		}
		job.EntityType = types.EntityType(entityType)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows error: %w", err)
	}

	return jobs, nil
}

// DeleteJob removes a job after successful processing.
func (s *Store) DeleteJob(ctx context.Context, msgID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM embedding_jobs WHERE msg_id = $1`, msgID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeadLetterJob moves a job to the dead-letter table with its last error.
func (s *Store) DeadLetterJob(ctx context.Context, msgID int64, lastError string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin dead-letter transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO embedding_jobs_dead (msg_id, tenant_id, entity_type, entity_id, content, enqueued_at, read_count, failed_at, last_error)
		SELECT msg_id, tenant_id, entity_type, entity_id, content, enqueued_at, read_count, CURRENT_TIMESTAMP, $2
		FROM embedding_jobs WHERE msg_id = $1
	`, msgID, lastError)
	if err != nil {
		return fmt.Errorf("postgres: failed to dead-letter job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM embedding_jobs WHERE msg_id = $1`, msgID); err != nil {
		return fmt.Errorf("postgres: failed to remove dead-lettered job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit dead-letter transaction: %w", err)
	}
	return nil
}

// QueueDepth returns the number of jobs in the queue, including in-flight.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_jobs`).Scan(&depth); err != nil {
		return 0, fmt.Errorf("postgres: failed to count jobs: %w", err)
	}
	return depth, nil
}

// DeadLetters returns up to limit dead jobs, newest first.
func (s *Store) DeadLetters(ctx context.Context, limit int) ([]types.DeadJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT msg_id, tenant_id, entity_type, entity_id, content, enqueued_at, read_count, failed_at, last_error
		FROM embedding_jobs_dead
		ORDER BY failed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to read dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dead := []types.DeadJob{}
	for rows.Next() {
		var d types.DeadJob
		var entityType string
		var lastError sql.NullString
		if err := rows.Scan(&d.MsgID, &d.TenantID, &entityType, &d.EntityID,
			&d.Content, &d.EnqueuedAt, &d.ReadCount, &d.FailedAt, &lastError); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan dead letter: %w", err)
		}
		d.EntityType = types.EntityType(entityType)
		if lastError.Valid {
			d.LastError = lastError.String
		}
		dead = append(dead, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows error: %w", err)
	}

	return dead, nil
}
