package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"docstream/internal/config"
	"docstream/internal/text"
	"docstream/internal/worker"
)

const (
	defaultChunkSize = 100
	defaultOverlap   = 20
)

// Publisher hands chunk job envelopes to the durable log.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type IngestRequest struct {
	TenantID         string
	Title            string
	Content          string
	FilePath         string
	ChunkingStrategy string
	ChunkSize        int
	// Overlap is nil when the caller left it unset; an explicit zero
	// disables overlap rather than falling back to the default.
	Overlap  *int
	Metadata map[string]any
}

type IngestResult struct {
	DocumentID string     `json:"document_id"`
	Jobs       []ChunkJob `json:"jobs"`
	Queued     int        `json:"queued"`
}

type Service struct {
	repo Repository
	pub  Publisher
}

func NewService(repo Repository, pub Publisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Ingest chunks the content, persists the document with its chunks and
// pending jobs, then publishes one message per chunk. Publish failures
// do not fail the ingest: the job rows stay pending and the
// reconciliation sweep republishes them.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.ChunkingStrategy == "" {
		req.ChunkingStrategy = text.StrategyFixedSize
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = defaultChunkSize
	}
	overlap := 0
	if req.Overlap != nil {
		overlap = *req.Overlap
	} else if req.ChunkSize > defaultOverlap {
		overlap = defaultOverlap
	}

	strategy, err := text.NewStrategy(req.ChunkingStrategy, req.ChunkSize, overlap)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		ID:               uuid.NewString(),
		TenantID:         req.TenantID,
		Title:            req.Title,
		Content:          req.Content,
		FilePath:         req.FilePath,
		ChunkingStrategy: req.ChunkingStrategy,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	pieces := strategy.Chunk(req.Content)
	if len(pieces) == 0 {
		slog.InfoContext(ctx, "document has no chunkable content", "document_id", doc.ID)
		return &IngestResult{DocumentID: doc.ID, Jobs: []ChunkJob{}}, nil
	}

	chunks := make([]Chunk, len(pieces))
	jobs := make([]ChunkJob, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			TenantID:   req.TenantID,
			Content:    p.Text,
			ChunkIndex: i,
			Size:       p.Size,
			StartChar:  p.StartChar,
			EndChar:    p.EndChar,
			Metadata:   req.Metadata,
		}
		jobs[i] = ChunkJob{
			JobID:      uuid.NewString(),
			ChunkID:    chunks[i].ID,
			ChunkIndex: i,
		}
	}

	if err := s.repo.CreateChunksAndJobs(ctx, chunks, jobs); err != nil {
		return nil, fmt.Errorf("persist chunks and jobs: %w", err)
	}

	queued := s.publishJobs(ctx, doc, chunks, jobs)

	slog.InfoContext(ctx, "document ingested",
		"document_id", doc.ID, "tenant_id", req.TenantID,
		"chunks", len(chunks), "queued", queued)

	return &IngestResult{DocumentID: doc.ID, Jobs: jobs, Queued: queued}, nil
}

func (s *Service) publishJobs(ctx context.Context, doc *Document, chunks []Chunk, jobs []ChunkJob) int {
	queued := 0
	for i, c := range chunks {
		msg := worker.JobMessage{
			JobID:         jobs[i].JobID,
			TenantID:      c.TenantID,
			DocumentID:    doc.ID,
			ChunkID:       c.ID,
			ChunkContent:  c.Content,
			ChunkIndex:    c.ChunkIndex,
			ChunkSize:     c.Size,
			ChunkMetadata: c.Metadata,
			FilePath:      doc.FilePath,
		}

		body, err := json.Marshal(msg)
		if err != nil {
			slog.ErrorContext(ctx, "failed to marshal job message", "error", err, "job_id", jobs[i].JobID)
			continue
		}
		if err := s.pub.Publish(ctx, config.TopicIngestion, []byte(doc.ID), body); err != nil {
			// Left pending; the reconciler republishes it.
			slog.ErrorContext(ctx, "failed to publish chunk job", "error", err, "job_id", jobs[i].JobID)
			continue
		}
		queued++
	}
	return queued
}

func (s *Service) GetChunks(ctx context.Context, documentID, tenantID string) ([]Chunk, error) {
	return s.repo.ListChunks(ctx, documentID, tenantID)
}
