package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

type ParseConfig struct {
	// Delays and priorities for the stages fanned out once text lands.
	QuickDelay     time.Duration
	QuickPriority  int
	ModelDelay     time.Duration
	ModelPriority  int
	EmbedDelay     time.Duration
	EmbedPriority  int
	DisplayOnQuick bool
}

// ParseUseCase runs the parse stage for uploaded files: extract text,
// persist it, chunk it, and fan out the downstream stages.
type ParseUseCase struct {
	contents   ports.ContentRepository
	chunks     ports.ChunkRepository
	extractors map[string]ports.Extractor
	fallback   ports.Extractor
	chunker    ports.Chunker
	scheduler  ports.TaskScheduler
	cfg        ParseConfig
	logger     *slog.Logger
}

func NewParseUseCase(
	contents ports.ContentRepository,
	chunks ports.ChunkRepository,
	extractors map[string]ports.Extractor,
	fallback ports.Extractor,
	chunker ports.Chunker,
	scheduler ports.TaskScheduler,
	cfg ParseConfig,
	logger *slog.Logger,
) *ParseUseCase {
	if cfg.QuickPriority == 0 {
		cfg.QuickPriority = 9
	}
	if cfg.ModelPriority == 0 {
		cfg.ModelPriority = 5
	}
	return &ParseUseCase{
		contents:   contents,
		chunks:     chunks,
		extractors: extractors,
		fallback:   fallback,
		chunker:    chunker,
		scheduler:  scheduler,
		cfg:        cfg,
		logger:     logger,
	}
}

func (uc *ParseUseCase) Parse(ctx context.Context, contentID string) error {
	content, err := uc.contents.GetByID(ctx, contentID)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if content.State.Parsing == domain.ParsingCompleted {
		// Re-delivered task after a completed run; nothing to redo.
		return nil
	}

	if err := uc.contents.UpdateParsingStatus(ctx, contentID, domain.ParsingRunning); err != nil {
		return fmt.Errorf("set parsing_status=parsing: %w", err)
	}

	extractor := uc.extractorFor(content.FileExtension())
	text, metadata, err := extractor.Extract(ctx, content.SourceURI, content.Title)
	if err != nil {
		uc.markParsingError(ctx, contentID)
		return domain.WrapError(domain.ErrTemporary, "extract text", err)
	}

	// A persistence failure here must not strand the content in the
	// parsing state; the error status lets a re-trigger start over.
	if err := uc.contents.SetText(ctx, contentID, text, content.Modality); err != nil {
		uc.markParsingError(ctx, contentID)
		return fmt.Errorf("persist extracted text: %w", err)
	}
	if err := uc.storeChunks(ctx, contentID, text); err != nil {
		uc.markParsingError(ctx, contentID)
		return err
	}
	if err := uc.contents.UpdateParsingStatus(ctx, contentID, domain.ParsingCompleted); err != nil {
		uc.markParsingError(ctx, contentID)
		return fmt.Errorf("set parsing_status=completed: %w", err)
	}

	uc.logger.Info("content parsed",
		"content_id", contentID,
		"chars", len(text),
		"metadata", metadata)

	uc.fanOut(ctx, contentID)
	return nil
}

// StoreChunks splits already-available text and persists the pieces.
// Used directly by the text ingestion path, which skips extraction.
func (uc *ParseUseCase) StoreChunks(ctx context.Context, contentID, text string) error {
	return uc.storeChunks(ctx, contentID, text)
}

func (uc *ParseUseCase) storeChunks(ctx context.Context, contentID, text string) error {
	pieces := uc.chunker.Split(text)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:        uuid.NewString(),
			ContentID: contentID,
			Seq:       i,
			Text:      piece,
			CharCount: len([]rune(piece)),
		})
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := uc.chunks.CreateBatch(ctx, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	return nil
}

// FanOut schedules the post-parse stages. Quick runs almost at once,
// the model stage after a short grace period so the quick label wins
// the first paint, embeddings whenever the queue gets to them.
func (uc *ParseUseCase) FanOut(ctx context.Context, contentID string) {
	uc.fanOut(ctx, contentID)
}

func (uc *ParseUseCase) fanOut(ctx context.Context, contentID string) {
	tasks := []domain.Task{
		domain.NewTask(uuid.NewString(), domain.TaskQuickClassify, contentID, uc.cfg.QuickPriority, uc.cfg.QuickDelay),
		domain.NewTask(uuid.NewString(), domain.TaskClassify, contentID, uc.cfg.ModelPriority, uc.cfg.ModelDelay),
		domain.NewTask(uuid.NewString(), domain.TaskGenerateEmbed, contentID, uc.cfg.EmbedPriority, uc.cfg.EmbedDelay),
	}
	for _, task := range tasks {
		if err := uc.scheduler.Enqueue(ctx, task); err != nil {
			uc.logger.Error("enqueue stage", "kind", task.Kind, "content_id", contentID, "error", err)
		}
	}
}

func (uc *ParseUseCase) markParsingError(ctx context.Context, contentID string) {
	if err := uc.contents.UpdateParsingStatus(ctx, contentID, domain.ParsingError); err != nil {
		uc.logger.Error("mark parsing error", "content_id", contentID, "error", err)
	}
}

func (uc *ParseUseCase) extractorFor(extension string) ports.Extractor {
	if extractor, ok := uc.extractors[extension]; ok {
		return extractor
	}
	return uc.fallback
}
