package ports

import (
	"context"
	"io"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

// ContentIngestor is the inbound contract for getting documents into
// the pipeline.
type ContentIngestor interface {
	IngestText(ctx context.Context, title, text, sourceURI string, modality domain.Modality) (*domain.Content, error)
	UploadFile(ctx context.Context, filename string, body io.Reader) (*domain.Content, error)
}

// ContentClassifier is the inbound contract for the authoritative
// classification stage. Safe to call repeatedly.
type ContentClassifier interface {
	Classify(ctx context.Context, contentID string) (*domain.ClassificationResult, error)
}

// QuickContentClassifier produces the provisional heuristic label.
type QuickContentClassifier interface {
	QuickClassify(ctx context.Context, contentID string, updateDisplay bool) (*domain.ClassificationResult, error)
}

// CollectionMatcher folds contents into user collections and reports
// the ids of the collections that matched.
type CollectionMatcher interface {
	MatchCollections(ctx context.Context, contentID string) ([]string, error)
}

// CollectionService manages user collections and their generated rules.
type CollectionService interface {
	CreateCollection(ctx context.Context, name, description string) (*domain.Collection, error)
	BackfillCollection(ctx context.Context, collectionID string) (matched int, failed int, err error)
}

// SearchService serves retrieval queries over pipeline output.
type SearchService interface {
	Search(ctx context.Context, query string, topK int, mode domain.SearchMode, filter domain.SearchFilter) domain.SearchResult
}
