package worker

import (
	"context"
)

// Embedder generates a vector for a chunk of text. May fail transiently.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore upserts vectors keyed by chunk id. Upserting the same key
// twice overwrites rather than duplicates, which is what makes message
// redelivery safe.
type VectorStore interface {
	Upsert(ctx context.Context, tenantID, key string, vector []float32, metadata map[string]any) error
}

// JobStore is the relational side of the pipeline: row-locked job status
// transitions plus the chunk's embedding presence flag.
type JobStore interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	RecordError(ctx context.Context, jobID, errMsg string) error
	SetChunkEmbeddingID(ctx context.Context, chunkID string) error
}

// Publisher hands a message to the log. Returns only after the log has
// acknowledged durable receipt.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}
