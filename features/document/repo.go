package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	CreateChunksAndJobs(ctx context.Context, chunks []Chunk, jobs []ChunkJob) error
	ListChunks(ctx context.Context, documentID, tenantID string) ([]Chunk, error)
	SetChunkEmbeddingID(ctx context.Context, chunkID string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (id, tenant_id, title, content, file_path, chunking_strategy) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	return r.db.QueryRowContext(ctx, query, doc.ID, doc.TenantID, doc.Title, doc.Content, doc.FilePath, doc.ChunkingStrategy).Scan(&doc.CreatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	query := `SELECT id, tenant_id, title, content, file_path, chunking_strategy, created_at FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.TenantID, &d.Title, &d.Content, &d.FilePath, &d.ChunkingStrategy, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateChunksAndJobs inserts every chunk and its pending job in one
// transaction. Either the whole batch lands or none of it does, so a
// chunk can never exist without a job row to track it.
func (r *PostgresRepo) CreateChunksAndJobs(ctx context.Context, chunks []Chunk, jobs []ChunkJob) error {
	if len(chunks) != len(jobs) {
		return fmt.Errorf("chunk/job count mismatch: %d chunks, %d jobs", len(chunks), len(jobs))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	chunkQuery := `INSERT INTO chunks (id, document_id, tenant_id, content, chunk_index, size, start_char, end_char, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	jobQuery := `INSERT INTO embedding_jobs (id, document_id, tenant_id, chunk_id, status) VALUES ($1, $2, $3, $4, 'pending')`

	for i, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, chunkQuery, c.ID, c.DocumentID, c.TenantID, c.Content, c.ChunkIndex, c.Size, c.StartChar, c.EndChar, metadata); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
		if _, err := tx.ExecContext(ctx, jobQuery, jobs[i].JobID, c.DocumentID, c.TenantID, c.ID); err != nil {
			return fmt.Errorf("insert job for chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) ListChunks(ctx context.Context, documentID, tenantID string) ([]Chunk, error) {
	query := `SELECT id, document_id, tenant_id, content, chunk_index, size, start_char, end_char, metadata, embedding_id, created_at FROM chunks WHERE document_id = $1 AND tenant_id = $2 ORDER BY chunk_index`
	rows, err := r.db.QueryContext(ctx, query, documentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.TenantID, &c.Content, &c.ChunkIndex, &c.Size, &c.StartChar, &c.EndChar, &metadata, &c.EmbeddingID, &c.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SetChunkEmbeddingID stamps the chunk with its own id as the vector
// reference. The vector object id is derived deterministically from the
// chunk id, so the column doubles as a completed marker.
func (r *PostgresRepo) SetChunkEmbeddingID(ctx context.Context, chunkID string) error {
	query := `UPDATE chunks SET embedding_id = id WHERE id = $1 AND embedding_id IS NULL`
	_, err := r.db.ExecContext(ctx, query, chunkID)
	return err
}
