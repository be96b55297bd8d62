package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docstream/features/job"
)

func testMessage() *JobMessage {
	return &JobMessage{
		JobID:        "job-1",
		TenantID:     "tenant-1",
		DocumentID:   "doc-1",
		ChunkID:      "chunk-1",
		ChunkContent: "some chunk text",
		ChunkIndex:   0,
		ChunkSize:    15,
		FilePath:     "/uploads/tenant-1/a.txt",
		Attempt:      AttemptMetadata{Attempt: 1},
	}
}

func newTestWorker(jobs JobStore, e Embedder, v VectorStore, embedAttempts int) *EmbeddingWorker {
	w := NewEmbeddingWorker(jobs, e, v, embedAttempts)
	w.sleep = func(context.Context, time.Duration) {}
	return w
}

func TestProcess_Success(t *testing.T) {
	jobs := new(MockJobStore)
	e := new(MockEmbedder)
	v := new(MockVectorStore)

	jobs.On("MarkProcessing", mock.Anything, "job-1").Return(nil)
	e.On("Embed", mock.Anything, "some chunk text").Return([]float32{0.1, 0.2}, nil)
	v.On("Upsert", mock.Anything, "tenant-1", "chunk-1", []float32{0.1, 0.2}, mock.MatchedBy(func(md map[string]any) bool {
		return md["job_id"] == "job-1" && md["document_id"] == "doc-1" && md["tenant_id"] == "tenant-1"
	})).Return(nil)
	jobs.On("SetChunkEmbeddingID", mock.Anything, "chunk-1").Return(nil)
	jobs.On("MarkCompleted", mock.Anything, "job-1").Return(nil)

	w := newTestWorker(jobs, e, v, 2)
	outcome := w.Process(context.Background(), testMessage())

	assert.Equal(t, Success, outcome.Kind)
	jobs.AssertExpectations(t)
	e.AssertExpectations(t)
	v.AssertExpectations(t)
}

func TestProcess_AlreadyCompleted_SkipsWork(t *testing.T) {
	jobs := new(MockJobStore)
	e := new(MockEmbedder)
	v := new(MockVectorStore)

	jobs.On("MarkProcessing", mock.Anything, "job-1").Return(job.ErrAlreadyCompleted)

	w := newTestWorker(jobs, e, v, 2)
	outcome := w.Process(context.Background(), testMessage())

	assert.Equal(t, Success, outcome.Kind)
	e.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	v.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_TransientEmbedErrorThenSuccess(t *testing.T) {
	jobs := new(MockJobStore)
	e := new(MockEmbedder)
	v := new(MockVectorStore)

	jobs.On("MarkProcessing", mock.Anything, "job-1").Return(nil)
	e.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.5}, nil).Once()
	v.On("Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	jobs.On("SetChunkEmbeddingID", mock.Anything, mock.Anything).Return(nil)
	jobs.On("MarkCompleted", mock.Anything, "job-1").Return(nil)

	w := newTestWorker(jobs, e, v, 2)
	outcome := w.Process(context.Background(), testMessage())

	assert.Equal(t, Success, outcome.Kind)
	e.AssertNumberOfCalls(t, "Embed", 2)
}

func TestProcess_EmbedRetriesExhausted(t *testing.T) {
	jobs := new(MockJobStore)
	e := new(MockEmbedder)
	v := new(MockVectorStore)

	jobs.On("MarkProcessing", mock.Anything, "job-1").Return(nil)
	e.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	w := newTestWorker(jobs, e, v, 2)
	outcome := w.Process(context.Background(), testMessage())

	assert.Equal(t, RetryableFailure, outcome.Kind)
	e.AssertNumberOfCalls(t, "Embed", 2)
	v.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_EmptyEmbeddingIsPermanent(t *testing.T) {
	jobs := new(MockJobStore)
	e := new(MockEmbedder)
	v := new(MockVectorStore)

	jobs.On("MarkProcessing", mock.Anything, "job-1").Return(nil)
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{}, nil)

	w := newTestWorker(jobs, e, v, 2)
	outcome := w.Process(context.Background(), testMessage())

	assert.Equal(t, PermanentFailure, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, ErrEmptyEmbedding)
	// An empty vector is a rejection, not a hiccup: no call-site retry.
	e.AssertNumberOfCalls(t, "Embed", 1)
}

func TestProcess_UpsertFailureIsRetryable(t *testing.T) {
	jobs := new(MockJobStore)
	e := new(MockEmbedder)
	v := new(MockVectorStore)

	jobs.On("MarkProcessing", mock.Anything, "job-1").Return(nil)
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	v.On("Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("vector store down"))

	w := newTestWorker(jobs, e, v, 2)
	outcome := w.Process(context.Background(), testMessage())

	assert.Equal(t, RetryableFailure, outcome.Kind)
	jobs.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
}

func TestProcess_ChunkUpdateFailureDoesNotFailJob(t *testing.T) {
	jobs := new(MockJobStore)
	e := new(MockEmbedder)
	v := new(MockVectorStore)

	jobs.On("MarkProcessing", mock.Anything, "job-1").Return(nil)
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	v.On("Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	jobs.On("SetChunkEmbeddingID", mock.Anything, "chunk-1").Return(errors.New("db blip"))
	jobs.On("MarkCompleted", mock.Anything, "job-1").Return(nil)

	w := newTestWorker(jobs, e, v, 2)
	outcome := w.Process(context.Background(), testMessage())

	assert.Equal(t, Success, outcome.Kind)
}

// memoryPipeline is a stateful fake covering the job row, the chunk's
// embedding flag, and the vector store, for end-to-end idempotence checks.
type memoryPipeline struct {
	status      job.Status
	errMsg      string
	embeddingID string
	vectors     map[string][]float32
	completions int
}

func newMemoryPipeline() *memoryPipeline {
	return &memoryPipeline{status: job.StatusPending, vectors: make(map[string][]float32)}
}

func (p *memoryPipeline) MarkProcessing(ctx context.Context, jobID string) error {
	if p.status == job.StatusCompleted {
		return job.ErrAlreadyCompleted
	}
	p.status = job.StatusProcessing
	return nil
}

func (p *memoryPipeline) MarkCompleted(ctx context.Context, jobID string) error {
	p.status = job.StatusCompleted
	p.errMsg = ""
	p.completions++
	return nil
}

func (p *memoryPipeline) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	p.status = job.StatusFailed
	p.errMsg = errMsg
	return nil
}

func (p *memoryPipeline) RecordError(ctx context.Context, jobID, errMsg string) error {
	p.errMsg = errMsg
	return nil
}

func (p *memoryPipeline) SetChunkEmbeddingID(ctx context.Context, chunkID string) error {
	p.embeddingID = chunkID
	return nil
}

func (p *memoryPipeline) Upsert(ctx context.Context, tenantID, key string, vector []float32, metadata map[string]any) error {
	p.vectors[key] = vector
	return nil
}

func TestProcess_RedeliveryIsIdempotent(t *testing.T) {
	// Simulates a crash between disposition and commit: the same message
	// is delivered twice.
	pipeline := newMemoryPipeline()
	e := new(MockEmbedder)
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)

	w := newTestWorker(pipeline, e, pipeline, 2)

	first := w.Process(context.Background(), testMessage())
	second := w.Process(context.Background(), testMessage())

	assert.Equal(t, Success, first.Kind)
	assert.Equal(t, Success, second.Kind)

	require.Equal(t, job.StatusCompleted, pipeline.status)
	assert.Equal(t, 1, pipeline.completions, "job should complete exactly once")
	assert.Equal(t, "chunk-1", pipeline.embeddingID)
	assert.Len(t, pipeline.vectors, 1, "exactly one vector per chunk")
}
