package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"docstream/features/job"
	"docstream/internal/middleware"
	"docstream/internal/worker"
)

type JobRepo interface {
	CountByStatus(ctx context.Context) (map[job.Status]int, error)
}

type HealthSource interface {
	Snapshot() worker.Health
}

type Handler struct {
	jobRepo JobRepo
	health  HealthSource
}

func NewHandler(j JobRepo, h HealthSource) *Handler {
	return &Handler{jobRepo: j, health: h}
}

type StatsResponse struct {
	Jobs   map[job.Status]int `json:"jobs"`
	Window worker.Health      `json:"window"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	counts, err := h.jobRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Jobs:   counts,
		Window: h.health.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
