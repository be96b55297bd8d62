package job

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// EmbeddingJob tracks the embedding of one chunk. Exactly one job exists
// per chunk. Status moves pending -> processing -> {completed | failed}
// and never returns to pending after being dequeued.
type EmbeddingJob struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	TenantID     string    `json:"tenant_id"`
	ChunkID      string    `json:"chunk_id"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PendingJob is a pending job joined with the chunk and document fields
// needed to rebuild its queue envelope.
type PendingJob struct {
	JobID         string
	TenantID      string
	DocumentID    string
	ChunkID       string
	ChunkContent  string
	ChunkIndex    int
	ChunkSize     int
	ChunkMetadata map[string]any
	FilePath      string
}

const maxErrorLength = 500

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
