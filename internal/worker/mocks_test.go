package worker

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"

	"docstream/features/job"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockVectorStore struct{ mock.Mock }

func (m *MockVectorStore) Upsert(ctx context.Context, tenantID, key string, vector []float32, metadata map[string]any) error {
	args := m.Called(ctx, tenantID, key, vector, metadata)
	return args.Error(0)
}

type MockJobStore struct{ mock.Mock }

func (m *MockJobStore) MarkProcessing(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobStore) MarkCompleted(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobStore) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	args := m.Called(ctx, jobID, errMsg)
	return args.Error(0)
}

func (m *MockJobStore) RecordError(ctx context.Context, jobID, errMsg string) error {
	args := m.Called(ctx, jobID, errMsg)
	return args.Error(0)
}

func (m *MockJobStore) SetChunkEmbeddingID(ctx context.Context, chunkID string) error {
	args := m.Called(ctx, chunkID)
	return args.Error(0)
}

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) Process(ctx context.Context, msg *JobMessage) Outcome {
	args := m.Called(ctx, msg)
	return args.Get(0).(Outcome)
}

// recordingPublisher captures publishes so tests can replay requeued
// envelopes back through the coordinator.
type publishedMessage struct {
	Topic string
	Key   []byte
	Value []byte
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	failTopic string
	failErr   error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTopic != "" && topic == p.failTopic {
		return p.failErr
	}
	p.published = append(p.published, publishedMessage{Topic: topic, Key: key, Value: value})
	return nil
}

func (p *recordingPublisher) byTopic(topic string) []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedMessage
	for _, m := range p.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// fakeReader only tracks commits; Handle is driven directly in tests.
type fakeReader struct {
	mu        sync.Mutex
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type MockPendingLister struct{ mock.Mock }

func (m *MockPendingLister) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]job.PendingJob, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.PendingJob), args.Error(1)
}
