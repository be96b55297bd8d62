package document

import (
	"time"
)

type Document struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Title            string    `json:"title"`
	Content          string    `json:"-"`
	FilePath         string    `json:"file_path,omitempty"`
	ChunkingStrategy string    `json:"chunking_strategy"`
	CreatedAt        time.Time `json:"created_at"`
}

type Chunk struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	TenantID    string         `json:"tenant_id"`
	Content     string         `json:"content"`
	ChunkIndex  int            `json:"chunk_index"`
	Size        int            `json:"size"`
	StartChar   int            `json:"start_char"`
	EndChar     int            `json:"end_char"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	EmbeddingID *string        `json:"embedding_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ChunkJob pairs a chunk with the pending embedding job created for it
// in the same transaction.
type ChunkJob struct {
	JobID      string `json:"job_id"`
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
}
