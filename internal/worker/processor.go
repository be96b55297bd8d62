package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docstream/features/job"
)

var ErrEmptyEmbedding = errors.New("embedding generator returned an empty vector")

// EmbeddingWorker orchestrates embedding generation, vector upsert, and
// job/chunk state transitions for one chunk. Every side effect is
// idempotent keyed by chunk id, so a redelivered message can safely rerun
// the whole sequence.
type EmbeddingWorker struct {
	jobs          JobStore
	embedder      Embedder
	vectors       VectorStore
	embedAttempts int
	sleep         func(context.Context, time.Duration)
}

func NewEmbeddingWorker(jobs JobStore, embedder Embedder, vectors VectorStore, embedAttempts int) *EmbeddingWorker {
	if embedAttempts < 1 {
		embedAttempts = 1
	}
	return &EmbeddingWorker{
		jobs:          jobs,
		embedder:      embedder,
		vectors:       vectors,
		embedAttempts: embedAttempts,
		sleep:         sleepCtx,
	}
}

func (w *EmbeddingWorker) Process(ctx context.Context, msg *JobMessage) Outcome {
	if err := w.jobs.MarkProcessing(ctx, msg.JobID); err != nil {
		if errors.Is(err, job.ErrAlreadyCompleted) {
			slog.InfoContext(ctx, "job already completed, skipping redelivery", "job_id", msg.JobID, "chunk_id", msg.ChunkID)
			return succeeded()
		}
		return retryable(fmt.Errorf("mark job processing: %w", err))
	}

	vector, err := w.embed(ctx, msg.ChunkContent)
	if err != nil {
		if errors.Is(err, ErrEmptyEmbedding) {
			return permanent(err)
		}
		return retryable(fmt.Errorf("generate embedding: %w", err))
	}

	metadata := map[string]any{
		"content":        msg.ChunkContent,
		"tenant_id":      msg.TenantID,
		"document_id":    msg.DocumentID,
		"chunk_id":       msg.ChunkID,
		"job_id":         msg.JobID,
		"chunk_index":    msg.ChunkIndex,
		"chunk_size":     msg.ChunkSize,
		"file_path":      msg.FilePath,
		"content_length": len(msg.ChunkContent),
		"processed_at":   time.Now().UTC().Format(time.RFC3339),
	}

	if err := w.vectors.Upsert(ctx, msg.TenantID, msg.ChunkID, vector, metadata); err != nil {
		return retryable(fmt.Errorf("upsert vector: %w", err))
	}

	// A failure here is tolerable: the vector is already stored and a
	// redelivery reruns this step, since the upsert above overwrites.
	if err := w.jobs.SetChunkEmbeddingID(ctx, msg.ChunkID); err != nil {
		slog.WarnContext(ctx, "failed to set chunk embedding id", "error", err, "chunk_id", msg.ChunkID)
	}

	if err := w.jobs.MarkCompleted(ctx, msg.JobID); err != nil {
		return retryable(fmt.Errorf("mark job completed: %w", err))
	}

	slog.InfoContext(ctx, "chunk embedded", "job_id", msg.JobID, "chunk_id", msg.ChunkID, "dimensions", len(vector))
	return succeeded()
}

// embed retries transient generator errors at the call site, separately
// from the message-level retry path. An empty vector is not retried here:
// the generator rejected the content, not the connection.
func (w *EmbeddingWorker) embed(ctx context.Context, content string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= w.embedAttempts; attempt++ {
		vector, err := w.embedder.Embed(ctx, content)
		if err == nil {
			if len(vector) == 0 {
				return nil, ErrEmptyEmbedding
			}
			return vector, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "embedding attempt failed", "attempt", attempt, "error", err)
		if attempt < w.embedAttempts {
			w.sleep(ctx, time.Duration(attempt)*time.Second)
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
