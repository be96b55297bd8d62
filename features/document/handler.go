package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docstream/internal/middleware"
	"docstream/internal/text"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID         string         `json:"tenant_id"`
		Title            string         `json:"title"`
		Content          string         `json:"content"`
		FilePath         string         `json:"file_path"`
		ChunkingStrategy string         `json:"chunking_strategy"`
		ChunkSize        int            `json:"chunk_size"`
		Overlap          *int           `json:"overlap"`
		Metadata         map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if req.TenantID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "tenant_id is required", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "content is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.Ingest(r.Context(), IngestRequest{
		TenantID:         req.TenantID,
		Title:            req.Title,
		Content:          req.Content,
		FilePath:         req.FilePath,
		ChunkingStrategy: req.ChunkingStrategy,
		ChunkSize:        req.ChunkSize,
		Overlap:          req.Overlap,
		Metadata:         req.Metadata,
	})
	if err != nil {
		if errors.Is(err, text.ErrUnknownStrategy) || errors.Is(err, text.ErrInvalidChunking) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("ingest failed", "error", err, "tenant_id", req.TenantID)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": result}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) ListChunks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := r.PathValue("id")
	tenantID := r.URL.Query().Get("tenant_id")

	if documentID == "" || tenantID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "document id and tenant_id are required", http.StatusBadRequest)
		return
	}

	chunks, err := h.service.GetChunks(ctx, documentID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to list chunks", "error", err, "document_id", documentID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if chunks == nil {
		chunks = []Chunk{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": chunks,
		"meta": map[string]int{"count": len(chunks)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
