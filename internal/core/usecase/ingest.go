package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

type IngestConfig struct {
	QuickDelay    time.Duration
	QuickPriority int
	ModelDelay    time.Duration
	ModelPriority int
	// MatchDelay schedules a backup collection-matching pass in case
	// the classify stage dies before chaining its own.
	MatchDelay    time.Duration
	EmbedPriority int
	ParsePriority int
	CreatedBy     string
}

func defaultIngestConfig(cfg IngestConfig) IngestConfig {
	if cfg.QuickDelay <= 0 {
		cfg.QuickDelay = time.Second
	}
	if cfg.QuickPriority == 0 {
		cfg.QuickPriority = 9
	}
	if cfg.ModelDelay <= 0 {
		cfg.ModelDelay = 6 * time.Second
	}
	if cfg.ModelPriority == 0 {
		cfg.ModelPriority = 5
	}
	if cfg.MatchDelay <= 0 {
		cfg.MatchDelay = 8 * time.Second
	}
	if cfg.ParsePriority == 0 {
		cfg.ParsePriority = 10
	}
	return cfg
}

// IngestUseCase accepts documents into the pipeline: direct text that
// needs no extraction, and uploaded files that go through the parse
// stage first.
type IngestUseCase struct {
	contents  ports.ContentRepository
	chunks    ports.ChunkRepository
	storage   ports.ObjectStorage
	chunker   ports.Chunker
	scheduler ports.TaskScheduler
	cfg       IngestConfig
	logger    *slog.Logger
}

func NewIngestUseCase(
	contents ports.ContentRepository,
	chunks ports.ChunkRepository,
	storage ports.ObjectStorage,
	chunker ports.Chunker,
	scheduler ports.TaskScheduler,
	cfg IngestConfig,
	logger *slog.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		contents:  contents,
		chunks:    chunks,
		storage:   storage,
		chunker:   chunker,
		scheduler: scheduler,
		cfg:       defaultIngestConfig(cfg),
		logger:    logger,
	}
}

// IngestText stores already-plain text. Parsing completes immediately
// and the classification race starts: the quick stage runs first with
// display rights, the model stage a few seconds later.
func (uc *IngestUseCase) IngestText(ctx context.Context, title, text, sourceURI string, modality domain.Modality) (*domain.Content, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest text", fmt.Errorf("empty text"))
	}
	if title == "" {
		title = firstLine(text)
	}

	content := &domain.Content{
		ID:        uuid.NewString(),
		SourceURI: sourceURI,
		Modality:  modality,
		Title:     title,
		Text:      text,
		State:     domain.NewProcessingState(),
		CreatedBy: uc.cfg.CreatedBy,
	}
	content.State.Parsing = domain.ParsingCompleted

	if err := uc.contents.Create(ctx, content); err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}
	if err := uc.createChunks(ctx, content.ID, text); err != nil {
		return nil, err
	}

	quickTask := domain.NewTask(uuid.NewString(), domain.TaskQuickClassify, content.ID, uc.cfg.QuickPriority, uc.cfg.QuickDelay)
	quickTask.Display = true
	uc.enqueue(ctx, quickTask)
	uc.enqueue(ctx, domain.NewTask(uuid.NewString(), domain.TaskClassify, content.ID, uc.cfg.ModelPriority, uc.cfg.ModelDelay))
	uc.enqueue(ctx, domain.NewTask(uuid.NewString(), domain.TaskGenerateEmbed, content.ID, uc.cfg.EmbedPriority, 0))
	uc.enqueue(ctx, domain.NewTask(uuid.NewString(), domain.TaskMatchCollections, content.ID, uc.cfg.QuickPriority, uc.cfg.MatchDelay))

	uc.logger.Info("text ingested", "content_id", content.ID, "title", title, "chars", len(text))
	return content, nil
}

// UploadFile persists the raw file and schedules the parse stage. No
// classification tasks are scheduled here; the parse stage fans them
// out once text exists.
func (uc *IngestUseCase) UploadFile(ctx context.Context, filename string, body io.Reader) (*domain.Content, error) {
	if filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload file", fmt.Errorf("empty filename"))
	}

	id := uuid.NewString()
	key := id + "/" + path.Base(filename)
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	content := &domain.Content{
		ID:        id,
		SourceURI: key,
		Modality:  modalityForFilename(filename),
		Title:     path.Base(filename),
		State:     domain.NewProcessingState(),
		CreatedBy: uc.cfg.CreatedBy,
	}
	if err := uc.contents.Create(ctx, content); err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}

	uc.enqueue(ctx, domain.NewTask(uuid.NewString(), domain.TaskParseContent, content.ID, uc.cfg.ParsePriority, 0))

	uc.logger.Info("file uploaded", "content_id", content.ID, "filename", filename, "storage_key", key)
	return content, nil
}

func (uc *IngestUseCase) createChunks(ctx context.Context, contentID, text string) error {
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

func (uc *IngestUseCase) enqueue(ctx context.Context, task domain.Task) {
	if err := uc.scheduler.Enqueue(ctx, task); err != nil {
		uc.logger.Error("enqueue task", "kind", task.Kind, "content_id", task.ContentID, "error", err)
	}
}

func modalityForFilename(filename string) domain.Modality {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return domain.ModalityImage
	case ".pdf":
		return domain.ModalityPDF
	default:
		return domain.ModalityText
	}
}

func firstLine(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > 50 {
		line = string(runes[:50])
	}
	if line == "" {
		line = "未命名内容"
	}
	return line
}
