package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"docstream/features/job"
	"docstream/internal/config"
)

// PendingLister surfaces jobs whose rows were committed but whose queue
// message may never have made it to the log.
type PendingLister interface {
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]job.PendingJob, error)
}

// Reconciler periodically republishes stale pending jobs. The row commit
// and the log publish are two independently-failing systems; this sweep
// closes the gap instead of rolling rows back. Publishing a job that was
// in fact queued only causes a redelivery, which is idempotent.
type Reconciler struct {
	lister    PendingLister
	publisher Publisher
	interval  time.Duration
	minAge    time.Duration
	batchSize int

	now func() time.Time
}

func NewReconciler(lister PendingLister, publisher Publisher, interval, minAge time.Duration) *Reconciler {
	return &Reconciler{
		lister:    lister,
		publisher: publisher,
		interval:  interval,
		minAge:    minAge,
		batchSize: 100,
		now:       time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				slog.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep republishes one batch of stale pending jobs to the primary topic.
func (r *Reconciler) Sweep(ctx context.Context) error {
	pending, err := r.lister.ListStalePending(ctx, r.minAge, r.batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	republished := 0
	for _, p := range pending {
		msg := JobMessage{
			JobID:         p.JobID,
			TenantID:      p.TenantID,
			DocumentID:    p.DocumentID,
			ChunkID:       p.ChunkID,
			ChunkContent:  p.ChunkContent,
			ChunkIndex:    p.ChunkIndex,
			ChunkSize:     p.ChunkSize,
			ChunkMetadata: p.ChunkMetadata,
			FilePath:      p.FilePath,
			Attempt: AttemptMetadata{
				Attempt:     1,
				PublishedAt: r.now().UnixMilli(),
			},
		}

		body, err := json.Marshal(msg)
		if err != nil {
			slog.Error("failed to marshal reconciled job", "error", err, "job_id", p.JobID)
			continue
		}
		if err := r.publisher.Publish(ctx, config.TopicIngestion, []byte(p.DocumentID), body); err != nil {
			// The next sweep picks the rest up again.
			slog.Error("failed to republish pending job", "error", err, "job_id", p.JobID)
			continue
		}
		republished++
	}

	slog.Info("reconciliation sweep completed", "stale", len(pending), "republished", republished)
	return nil
}
