package document

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHandler(repo Repository, pub Publisher) *Handler {
	return NewHandler(NewService(repo, pub))
}

func TestHandlerCreate_Success(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateChunksAndJobs", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	h := newTestHandler(repo, &capturePublisher{})

	body := `{"tenant_id": "tenant-1", "title": "doc", "content": "Hello world. This is chunk two.", "chunking_strategy": "sentence_aware", "chunk_size": 20, "overlap": 5}`
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data IngestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.DocumentID)
	assert.Len(t, resp.Data.Jobs, 2)
	assert.Equal(t, 2, resp.Data.Queued)
}

func TestHandlerCreate_MissingTenant(t *testing.T) {
	h := newTestHandler(new(MockRepository), &capturePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"content": "text"}`))
	rec := httptest.NewRecorder()

	h.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant_id is required")
}

func TestHandlerCreate_MissingContent(t *testing.T) {
	h := newTestHandler(new(MockRepository), &capturePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"tenant_id": "tenant-1"}`))
	rec := httptest.NewRecorder()

	h.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCreate_UnknownStrategy(t *testing.T) {
	h := newTestHandler(new(MockRepository), &capturePublisher{})

	body := `{"tenant_id": "tenant-1", "content": "text", "chunking_strategy": "semantic"}`
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandlerListChunks_Success(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListChunks", mock.Anything, "doc-1", "tenant-1").Return([]Chunk{
		{ID: "chunk-1", DocumentID: "doc-1", ChunkIndex: 0},
	}, nil)

	h := newTestHandler(repo, &capturePublisher{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{id}/chunks", h.ListChunks)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/chunks?tenant_id=tenant-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chunk-1")
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestHandlerListChunks_MissingTenant(t *testing.T) {
	h := newTestHandler(new(MockRepository), &capturePublisher{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{id}/chunks", h.ListChunks)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/chunks", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
