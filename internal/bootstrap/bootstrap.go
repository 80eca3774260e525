package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/knowledge-pipeline/internal/config"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
	"github.com/kirillkom/knowledge-pipeline/internal/core/usecase"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/chunking"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/extractor/pdfdoc"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/extractor/plaintext"
	openaillm "github.com/kirillkom/knowledge-pipeline/internal/infrastructure/llm/openai"
	memoryqueue "github.com/kirillkom/knowledge-pipeline/internal/infrastructure/queue/memory"
	natsqueue "github.com/kirillkom/knowledge-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Scheduler ports.TaskScheduler
	Contents  ports.ContentRepository

	IngestUC      *usecase.IngestUseCase
	ParseUC       *usecase.ParseUseCase
	QuickUC       *usecase.QuickClassifyUseCase
	ClassifyUC    *usecase.ClassifyUseCase
	EmbedUC       *usecase.EmbedUseCase
	CollectionsUC *usecase.CollectionUseCase
	SearchUC      *usecase.SearchUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	contents := postgres.NewContentRepository(db)
	if err := contents.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)
	categories := postgres.NewCategoryRepository(db)
	if err := categories.EnsureSystemCategories(ctx); err != nil {
		return nil, fmt.Errorf("ensure system categories: %w", err)
	}
	collections := postgres.NewCollectionRepository(db)
	signals := postgres.NewSignalRepository(db)
	searchRepo := postgres.NewSearchRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	var scheduler ports.TaskScheduler
	closeScheduler := func() {}
	switch cfg.QueueDriver {
	case "memory":
		inproc := memoryqueue.New(logger)
		inproc.SetRetry(time.Duration(cfg.TaskRetrySeconds)*time.Second, cfg.TaskMaxAttempts)
		scheduler = inproc
	default:
		nq, err := natsqueue.NewWithOptions(cfg.NATSURL, logger, natsqueue.Options{
			ResilienceExecutor: executor,
			RetryDelay:         time.Duration(cfg.TaskRetrySeconds) * time.Second,
			MaxAttempts:        cfg.TaskMaxAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("init task scheduler: %w", err)
		}
		scheduler = nq
		closeScheduler = nq.Close
	}

	llmClient := openaillm.New(openaillm.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		ChatModel:         cfg.OpenAIChatModel,
		EmbedModel:        cfg.OpenAIEmbedModel,
		RequestsPerSecond: cfg.OpenAIRPS,
	}, executor)
	modelClassifier := openaillm.NewClassifier(llmClient)
	embedder := openaillm.NewEmbedder(llmClient)

	chunker := chunking.NewSplitter(cfg.ChunkSize)
	textExtractor := plaintext.NewExtractor(storage)
	pdfExtractor := pdfdoc.NewExtractor(storage)
	extractors := map[string]ports.Extractor{
		".txt": textExtractor,
		".md":  textExtractor,
		".pdf": pdfExtractor,
	}

	quickDelay := time.Duration(cfg.QuickDelaySeconds) * time.Second
	modelDelay := time.Duration(cfg.ModelDelaySeconds) * time.Second
	matchDelay := time.Duration(cfg.MatchDelaySeconds) * time.Second

	ingestUC := usecase.NewIngestUseCase(contents, chunks, storage, chunker, scheduler, usecase.IngestConfig{
		QuickDelay: quickDelay,
		ModelDelay: modelDelay,
		MatchDelay: matchDelay,
	}, logger)
	parseUC := usecase.NewParseUseCase(contents, chunks, extractors, textExtractor, chunker, scheduler, usecase.ParseConfig{
		QuickDelay: quickDelay,
		ModelDelay: modelDelay,
	}, logger)
	quickUC := usecase.NewQuickClassifyUseCase(contents, categories, signals)
	classifyUC := usecase.NewClassifyUseCase(contents, categories, signals, modelClassifier, scheduler, usecase.ClassifyConfig{
		ModelTimeout:   time.Duration(cfg.ModelTimeoutSeconds) * time.Second,
		ForceOverwrite: cfg.ForceModelReclassify,
	}, logger)
	embedUC := usecase.NewEmbedUseCase(contents, chunks, embedder, logger)
	collectionsUC, err := usecase.NewCollectionUseCase(collections, categories, contents, signals, usecase.CollectionConfig{
		BackfillWorkers: cfg.BackfillWorkers,
		RuleOverlayPath: cfg.CollectionRulesFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init collection service: %w", err)
	}
	searchUC := usecase.NewSearchUseCase(searchRepo, embedder, usecase.SearchConfig{
		DefaultTopK:    cfg.SearchTopK,
		CandidateLimit: cfg.SearchCandidates,
	}, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Scheduler: scheduler,
		Contents:  contents,

		IngestUC:      ingestUC,
		ParseUC:       parseUC,
		QuickUC:       quickUC,
		ClassifyUC:    classifyUC,
		EmbedUC:       embedUC,
		CollectionsUC: collectionsUC,
		SearchUC:      searchUC,

		closeFn: func() {
			closeScheduler()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
