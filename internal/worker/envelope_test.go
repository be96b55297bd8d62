package worker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_Valid(t *testing.T) {
	body := []byte(`{
		"job_id": "j1",
		"tenant_id": "t1",
		"document_id": "d1",
		"chunk_id": "c1",
		"chunk_content": "some text",
		"chunk_index": 2,
		"chunk_size": 9,
		"chunk_metadata": {"lang": "en"},
		"file_path": "/uploads/t1/a.txt",
		"attempt_metadata": {"attempt": 2, "published_at": 1700000000000, "last_error": "boom"}
	}`)

	msg, invalid := DecodeMessage(body)
	require.Nil(t, invalid)
	require.NotNil(t, msg)
	assert.Equal(t, "j1", msg.JobID)
	assert.Equal(t, "c1", msg.ChunkID)
	assert.Equal(t, 2, msg.ChunkIndex)
	assert.Equal(t, 2, msg.Attempt.Attempt)
	assert.Equal(t, "boom", msg.Attempt.LastError)
	assert.Equal(t, map[string]any{"lang": "en"}, msg.ChunkMetadata)
}

func TestDecodeMessage_MissingChunkContent(t *testing.T) {
	body := []byte(`{"job_id": "j1", "tenant_id": "t1", "chunk_id": "c1"}`)

	msg, invalid := DecodeMessage(body)
	assert.Nil(t, msg)
	require.NotNil(t, invalid)
	assert.Contains(t, invalid.Reason, "chunk_content")
	assert.Equal(t, body, invalid.Raw)
}

func TestDecodeMessage_EmptyRequiredField(t *testing.T) {
	body := []byte(`{"job_id": "", "tenant_id": "t1", "chunk_id": "c1", "chunk_content": "x"}`)

	msg, invalid := DecodeMessage(body)
	assert.Nil(t, msg)
	require.NotNil(t, invalid)
	assert.Contains(t, invalid.Reason, "job_id")
}

func TestDecodeMessage_MalformedJSON(t *testing.T) {
	body := []byte(`{not json`)

	msg, invalid := DecodeMessage(body)
	assert.Nil(t, msg)
	require.NotNil(t, invalid)
	assert.Contains(t, invalid.Reason, "malformed payload")
	assert.Equal(t, body, invalid.Raw)
}

func TestDeadLetter_FlattensEnvelope(t *testing.T) {
	dl := DeadLetter{
		JobMessage:   JobMessage{JobID: "j1", TenantID: "t1", ChunkID: "c1", ChunkContent: "x"},
		DLQReason:    "max retries exceeded: boom",
		DLQTimestamp: 1700000000000,
	}

	body, err := json.Marshal(dl)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "j1", out["job_id"])
	assert.Equal(t, "max retries exceeded: boom", out["dlq_reason"])
}
