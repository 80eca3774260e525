package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

// embedBatchSize bounds one embedding service call.
const embedBatchSize = 16

// EmbedUseCase fills in missing chunk embeddings for a content. The
// stage is optional: with no embedder configured the pipeline still
// completes and search falls back to the lexical path.
type EmbedUseCase struct {
	contents ports.ContentRepository
	chunks   ports.ChunkRepository
	embedder ports.Embedder
	logger   *slog.Logger
}

func NewEmbedUseCase(
	contents ports.ContentRepository,
	chunks ports.ChunkRepository,
	embedder ports.Embedder,
	logger *slog.Logger,
) *EmbedUseCase {
	return &EmbedUseCase{
		contents: contents,
		chunks:   chunks,
		embedder: embedder,
		logger:   logger,
	}
}

func (uc *EmbedUseCase) GenerateEmbeddings(ctx context.Context, contentID string) error {
	if !uc.embedder.Enabled() {
		return nil
	}

	content, err := uc.contents.GetByID(ctx, contentID)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if content.State.Parsing != domain.ParsingCompleted {
		return domain.WrapError(domain.ErrStageNotReady, "generate embeddings",
			fmt.Errorf("parsing_status=%s", content.State.Parsing))
	}

	// Only chunks without a vector are touched, so re-delivery after a
	// partial run resumes where the last one stopped.
	pending, err := uc.chunks.ListMissingEmbeddings(ctx, contentID)
	if err != nil {
		return fmt.Errorf("list pending chunks: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	embedded := 0
	for start := 0; start < len(pending); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}
		vectors, err := uc.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return domain.WrapError(domain.ErrExternalService, "embed batch", err)
		}
		if len(vectors) != len(batch) {
			return domain.WrapError(domain.ErrMalformedResponse, "embed batch",
				fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch)))
		}

		for i, chunk := range batch {
			if err := uc.chunks.SaveEmbedding(ctx, chunk.ID, vectors[i]); err != nil {
				return fmt.Errorf("save embedding for chunk %s: %w", chunk.ID, err)
			}
			embedded++
		}
	}

	uc.logger.Info("embeddings generated", "content_id", contentID, "chunks", embedded)
	return nil
}
