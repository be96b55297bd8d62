package worker

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"docstream/internal/config"
)

// Reader is the subset of a consumer-group log reader the coordinator
// needs. Satisfied by *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processor turns one validated message into an explicit outcome.
type Processor interface {
	Process(ctx context.Context, msg *JobMessage) Outcome
}

// Coordinator drives the per-message retry/DLQ state machine. The offset
// for a message is committed only after one of the three terminal
// dispositions: success, requeue on the retry path, or dead-letter. A
// crash before that point causes redelivery, which is safe because all
// downstream side effects are idempotent by chunk id.
type Coordinator struct {
	reader      Reader
	publisher   Publisher
	processor   Processor
	jobs        JobStore
	health      *Monitor
	maxAttempts int

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

func NewCoordinator(reader Reader, publisher Publisher, processor Processor, jobs JobStore, health *Monitor, maxAttempts int) *Coordinator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Coordinator{
		reader:      reader,
		publisher:   publisher,
		processor:   processor,
		jobs:        jobs,
		health:      health,
		maxAttempts: maxAttempts,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Run consumes until the context is canceled. The in-flight message is
// always driven to a disposition before the loop observes cancellation,
// so shutdown never strands an uncommitted-but-processed message.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("retry coordinator started", "max_attempts", c.maxAttempts)
	defer func() {
		if err := c.reader.Close(); err != nil {
			slog.Error("failed to close log reader", "error", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("retry coordinator stopping")
				return nil
			}
			slog.Error("fetch failed", "error", err)
			c.sleep(ctx, time.Second)
			continue
		}
		c.Handle(ctx, m)
	}
}

// Handle disposes of exactly one fetched message.
func (c *Coordinator) Handle(ctx context.Context, m kafka.Message) {
	msg, invalid := DecodeMessage(m.Value)
	if invalid != nil {
		slog.ErrorContext(ctx, "invalid message, dead-lettering", "topic", m.Topic, "reason", invalid.Reason)
		c.deadLetterInvalid(ctx, invalid)
		c.health.RecordFailure()
		c.commit(ctx, m)
		return
	}

	attempt := msg.Attempt.Attempt
	if attempt < 1 {
		attempt = 1
	}

	// Retried messages carry their own backoff deadline; honor it
	// before reprocessing. Waiting in-loop is safe because ordering is
	// only promised per partition and the offset stays uncommitted.
	if due := msg.Attempt.RetryAfterMS; due > 0 {
		if wait := time.UnixMilli(due).Sub(c.now()); wait > 0 {
			c.sleep(ctx, wait)
		}
	}

	outcome := c.processor.Process(ctx, msg)
	if outcome.Kind == Success {
		c.health.RecordProcessed()
		c.commit(ctx, m)
		return
	}

	if attempt < c.maxAttempts {
		if err := c.requeue(ctx, msg, attempt, outcome); err != nil {
			// Leave the offset uncommitted: the primary log will
			// redeliver and we try the disposition again.
			slog.ErrorContext(ctx, "failed to requeue, leaving message for redelivery", "error", err, "job_id", msg.JobID)
			c.health.RecordFailure()
			return
		}
		if err := c.jobs.RecordError(ctx, msg.JobID, outcome.Err.Error()); err != nil {
			slog.WarnContext(ctx, "failed to record job error", "error", err, "job_id", msg.JobID)
		}
		c.health.RecordFailure()
		c.commit(ctx, m)
		return
	}

	if err := c.deadLetter(ctx, msg, outcome); err != nil {
		slog.ErrorContext(ctx, "failed to dead-letter, leaving message for redelivery", "error", err, "job_id", msg.JobID)
		c.health.RecordFailure()
		return
	}
	if err := c.jobs.MarkFailed(ctx, msg.JobID, outcome.Err.Error()); err != nil {
		slog.WarnContext(ctx, "failed to mark job failed", "error", err, "job_id", msg.JobID)
	}
	c.health.RecordFailure()
	c.commit(ctx, m)
}

func (c *Coordinator) requeue(ctx context.Context, msg *JobMessage, attempt int, outcome Outcome) error {
	next := *msg
	nowMS := c.now().UnixMilli()
	next.Attempt = AttemptMetadata{
		Attempt:      attempt + 1,
		PublishedAt:  nowMS,
		LastError:    outcome.Err.Error(),
		RetryAfterMS: nowMS + retryBackoff(attempt).Milliseconds(),
	}

	body, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal retry envelope: %w", err)
	}
	if err := c.publisher.Publish(ctx, config.TopicRetry, []byte(msg.DocumentID), body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "message requeued", "job_id", msg.JobID, "attempt", attempt+1, "error", outcome.Err)
	return nil
}

func (c *Coordinator) deadLetter(ctx context.Context, msg *JobMessage, outcome Outcome) error {
	dl := DeadLetter{
		JobMessage:   *msg,
		DLQReason:    fmt.Sprintf("max retries exceeded: %v", outcome.Err),
		DLQTimestamp: c.now().UnixMilli(),
	}

	body, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	// The DLQ topic is compacted, so the key must be unique per dead
	// letter: keying by job id keeps one record per failed chunk instead
	// of one per document.
	if err := c.publisher.Publish(ctx, config.TopicDLQ, []byte(msg.JobID), body); err != nil {
		return err
	}

	slog.WarnContext(ctx, "message dead-lettered", "job_id", msg.JobID, "attempts", msg.Attempt.Attempt, "reason", dl.DLQReason)
	return nil
}

// deadLetterInvalid is best-effort: an undecodable payload is committed
// even if the DLQ publish fails, since redelivering it can never succeed.
func (c *Coordinator) deadLetterInvalid(ctx context.Context, invalid *InvalidMessage) {
	dl := DeadLetter{
		DLQReason:    invalid.Reason,
		DLQTimestamp: c.now().UnixMilli(),
		RawPayload:   string(invalid.Raw),
	}

	body, err := json.Marshal(dl)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal invalid dead letter", "error", err)
		return
	}
	// No job id to key by, and the compacted topic rejects keyless
	// records; a digest of the raw bytes gives a stable unique key.
	key := fmt.Sprintf("%x", sha256.Sum256(invalid.Raw))
	if err := c.publisher.Publish(ctx, config.TopicDLQ, []byte(key), body); err != nil {
		slog.ErrorContext(ctx, "failed to publish invalid message to dlq", "error", err)
	}
}

func (c *Coordinator) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		// Redelivery after a commit failure is safe; log and move on.
		slog.ErrorContext(ctx, "offset commit failed", "error", err, "topic", m.Topic, "partition", m.Partition, "offset", m.Offset)
	}
}

const maxRetryBackoff = 30 * time.Second

func retryBackoff(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}
