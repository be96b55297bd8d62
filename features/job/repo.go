package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyCompleted marks a status update against a job that already
// finished. Redelivered messages use it to skip reprocessing.
var ErrAlreadyCompleted = errors.New("job already completed")

type Repository interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	RecordError(ctx context.Context, id, errMsg string) error
	ListFailed(ctx context.Context) ([]EmbeddingJob, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]PendingJob, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusProcessing, nil)
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusCompleted, nil)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	truncated := truncateError(errMsg)
	return r.setStatus(ctx, id, StatusFailed, &truncated)
}

// setStatus performs a row-locked read-modify-write so that concurrent
// redeliveries of the same message serialize on the job row.
func (r *PostgresRepo) setStatus(ctx context.Context, id string, status Status, errMsg *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM embedding_jobs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		return fmt.Errorf("lock job %s: %w", id, err)
	}

	// Completed is terminal. A redelivered message must not drag a
	// finished job back through processing.
	if current == StatusCompleted && status != StatusCompleted {
		return ErrAlreadyCompleted
	}

	if status == StatusCompleted {
		_, err = tx.ExecContext(ctx,
			`UPDATE embedding_jobs SET status = $2, error_message = NULL, updated_at = NOW() WHERE id = $1`,
			id, status)
	} else if errMsg != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE embedding_jobs SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`,
			id, status, *errMsg)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE embedding_jobs SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, status)
	}
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}

	return tx.Commit()
}

// RecordError stores a failure message without changing the job status.
// Used while a message is still on the retry path.
func (r *PostgresRepo) RecordError(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE embedding_jobs SET error_message = $2, updated_at = NOW() WHERE id = $1`,
		id, truncateError(errMsg))
	return err
}

func (r *PostgresRepo) ListFailed(ctx context.Context) ([]EmbeddingJob, error) {
	query := `SELECT id, document_id, tenant_id, chunk_id, status, COALESCE(error_message, ''), created_at, updated_at
		FROM embedding_jobs WHERE status = 'failed' ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []EmbeddingJob
	for rows.Next() {
		var j EmbeddingJob
		if err := rows.Scan(&j.ID, &j.DocumentID, &j.TenantID, &j.ChunkID, &j.Status, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM embedding_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ListStalePending returns pending jobs older than the cutoff, joined with
// their chunk and document rows. The reconciliation sweep republishes them
// in case the original publish was lost after the rows were committed.
func (r *PostgresRepo) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]PendingJob, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `SELECT j.id, j.tenant_id, j.document_id, j.chunk_id, c.content, c.chunk_index, c.size, c.metadata, COALESCE(d.file_path, '')
		FROM embedding_jobs j
		JOIN chunks c ON c.id = j.chunk_id
		JOIN documents d ON d.id = j.document_id
		WHERE j.status = 'pending' AND j.created_at < $1
		ORDER BY j.created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []PendingJob
	for rows.Next() {
		var p PendingJob
		var metadata []byte
		if err := rows.Scan(&p.JobID, &p.TenantID, &p.DocumentID, &p.ChunkID, &p.ChunkContent, &p.ChunkIndex, &p.ChunkSize, &metadata, &p.FilePath); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &p.ChunkMetadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata for job %s: %w", p.JobID, err)
			}
		}
		jobs = append(jobs, p)
	}
	return jobs, rows.Err()
}
