package ports

import (
	"context"
	"io"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

// ContentRepository persists Content rows and their processing state.
type ContentRepository interface {
	Create(ctx context.Context, content *domain.Content) error
	GetByID(ctx context.Context, id string) (*domain.Content, error)
	ListIDs(ctx context.Context) ([]string, error)
	SetText(ctx context.Context, id, text string, modality domain.Modality) error
	UpdateParsingStatus(ctx context.Context, id string, status domain.ParsingStatus) error
	UpdateClassificationStatus(ctx context.Context, id string, status domain.ClassificationStatus) error
	SetShowClassification(ctx context.Context, id string, show bool) error
}

// ChunkRepository persists chunks and embedding backfill.
type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []domain.Chunk) error
	ListByContent(ctx context.Context, contentID string) ([]domain.Chunk, error)
	ListMissingEmbeddings(ctx context.Context, contentID string) ([]domain.Chunk, error)
	SaveEmbedding(ctx context.Context, chunkID string, vector []float32) error
}

// CategoryRepository persists the taxonomy and classification rows.
type CategoryRepository interface {
	EnsureSystemCategories(ctx context.Context) error
	GetByName(ctx context.Context, name string) (*domain.Category, error)
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	CreateUserCategory(ctx context.Context, category *domain.Category) error

	// GetPrimary returns the most recent primary_system association,
	// preferring ml on a created_at tie, or nil when none exists.
	GetPrimary(ctx context.Context, contentID string) (*domain.ContentCategory, error)
	HasSystemClassification(ctx context.Context, contentID string) (bool, error)
	HasAssociation(ctx context.Context, contentID, categoryID, reasoning string) (bool, error)
	CreateAssociation(ctx context.Context, assoc *domain.ContentCategory) error
	DeleteSystemAssociations(ctx context.Context, contentID string) error
}

// CollectionRepository persists user collections and their rules.
type CollectionRepository interface {
	Create(ctx context.Context, collection *domain.Collection) error
	GetByID(ctx context.Context, id string) (*domain.Collection, error)
	ListUserCollections(ctx context.Context) ([]domain.Collection, error)
	SaveRules(ctx context.Context, collectionID string, rules domain.QueryRules) error
}

// SignalRepository appends audit records. Append-only by contract.
type SignalRepository interface {
	Append(ctx context.Context, signal *domain.Signal) error
}

// SearchRepository runs the query-time read paths over chunks.
type SearchRepository interface {
	SearchExact(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchRow, error)
	SearchAllWords(ctx context.Context, words []string, filter domain.SearchFilter, limit int) ([]domain.SearchRow, error)
	SearchAnyWords(ctx context.Context, words []string, filter domain.SearchFilter, limit int) ([]domain.SearchRow, error)
	SearchSimilar(ctx context.Context, vector []float32, filter domain.SearchFilter, maxDistance float64, limit int) ([]domain.SearchRow, error)
}

// TaskHandler runs one pipeline task. Returning domain.ErrStageNotReady
// requests a delayed re-enqueue instead of a failure.
type TaskHandler func(ctx context.Context, task domain.Task) error

// TaskScheduler is the at-least-once, priority-queued job runner with
// per-task delay used by every pipeline stage.
type TaskScheduler interface {
	Enqueue(ctx context.Context, task domain.Task) error
	Subscribe(ctx context.Context, class domain.QueueClass, handler TaskHandler) error
}

// Extractor turns a stored file into plain text.
type Extractor interface {
	Extract(ctx context.Context, storageKey, filename string) (text string, metadata map[string]string, err error)
}

// Chunker splits extracted text into indexable pieces.
type Chunker interface {
	Split(text string) []string
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Embedder builds fixed-dimension dense vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Enabled() bool
}

// ModelClassifier calls the external language-model service.
type ModelClassifier interface {
	Classify(ctx context.Context, title, excerpt string) (domain.ModelLabel, error)
	Enabled() bool
	Model() string
}
