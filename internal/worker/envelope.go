package worker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AttemptMetadata travels inside the message itself so the retry state
// machine needs no external store.
type AttemptMetadata struct {
	Attempt     int    `json:"attempt"`
	PublishedAt int64  `json:"published_at"`
	LastError   string `json:"last_error,omitempty"`
	// RetryAfterMS is a unix-millisecond deadline the consumer waits for
	// before reprocessing a retried message.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
}

// JobMessage is the wire envelope for one chunk embedding job.
type JobMessage struct {
	JobID         string          `json:"job_id"`
	TenantID      string          `json:"tenant_id"`
	DocumentID    string          `json:"document_id"`
	ChunkID       string          `json:"chunk_id"`
	ChunkContent  string          `json:"chunk_content"`
	ChunkIndex    int             `json:"chunk_index"`
	ChunkSize     int             `json:"chunk_size"`
	ChunkMetadata map[string]any  `json:"chunk_metadata,omitempty"`
	FilePath      string          `json:"file_path,omitempty"`
	Attempt       AttemptMetadata `json:"attempt_metadata"`
}

// DeadLetter annotates an envelope for the dead-letter topic.
type DeadLetter struct {
	JobMessage
	DLQReason    string `json:"dlq_reason"`
	DLQTimestamp int64  `json:"dlq_timestamp"`
	// RawPayload preserves undecodable input for manual inspection.
	RawPayload string `json:"raw_payload,omitempty"`
}

// InvalidMessage is the rejected half of the decode result. It never
// reaches the embedding worker.
type InvalidMessage struct {
	Reason string
	Raw    []byte
}

var requiredFields = []string{"job_id", "tenant_id", "chunk_id", "chunk_content"}

// DecodeMessage validates a raw payload into either a JobMessage or an
// InvalidMessage. It never returns an error: malformed input must not
// crash the consumer loop, it is routed to the dead-letter path as data.
func DecodeMessage(body []byte) (*JobMessage, *InvalidMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &InvalidMessage{
			Reason: fmt.Sprintf("malformed payload: %v", err),
			Raw:    body,
		}
	}

	var missing []string
	for _, f := range requiredFields {
		raw, ok := fields[f]
		if !ok || string(raw) == `""` || string(raw) == "null" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &InvalidMessage{
			Reason: fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")),
			Raw:    body,
		}
	}

	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &InvalidMessage{
			Reason: fmt.Sprintf("malformed payload: %v", err),
			Raw:    body,
		}
	}

	return &msg, nil
}
