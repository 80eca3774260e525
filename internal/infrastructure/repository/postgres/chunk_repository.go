package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO chunks (id, content_id, seq, body, char_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, chunk.ID, chunk.ContentID, chunk.Seq, chunk.Text, chunk.CharCount, createdAt)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByContent(ctx context.Context, contentID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, content_id, seq, body, char_count, created_at
FROM chunks
WHERE content_id = $1
ORDER BY seq
`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func (r *ChunkRepository) ListMissingEmbeddings(ctx context.Context, contentID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, content_id, seq, body, char_count, created_at
FROM chunks
WHERE content_id = $1 AND embedding IS NULL
ORDER BY seq
`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list unembedded chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func (r *ChunkRepository) SaveEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET embedding = $2
WHERE id = $1
`, chunkID, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.ContentID, &chunk.Seq, &chunk.Text, &chunk.CharCount, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
