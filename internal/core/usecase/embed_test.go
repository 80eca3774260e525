package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

func seedChunks(t *testing.T, chunks *fakeChunkRepo, contentID string, n int) {
	t.Helper()
	batch := make([]domain.Chunk, n)
	for i := range batch {
		batch[i] = domain.Chunk{
			ID:        fmt.Sprintf("%s-ch%d", contentID, i),
			ContentID: contentID,
			Seq:       i,
			Text:      fmt.Sprintf("chunk %d", i),
		}
	}
	if err := chunks.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("seed chunks: %v", err)
	}
}

func TestGenerateEmbeddingsFillsMissingVectors(t *testing.T) {
	contents := newFakeContentRepo(completedContent("c1", "a.md", "text"))
	chunks := newFakeChunkRepo()
	seedChunks(t, chunks, "c1", 3)
	embedder := &fakeEmbedder{enabled: true, vector: []float32{0.1, 0.2}}
	uc := NewEmbedUseCase(contents, chunks, embedder, discardLogger())

	if err := uc.GenerateEmbeddings(context.Background(), "c1"); err != nil {
		t.Fatalf("generate embeddings: %v", err)
	}
	missing, _ := chunks.ListMissingEmbeddings(context.Background(), "c1")
	if len(missing) != 0 {
		t.Fatalf("expected all chunks embedded, %d missing", len(missing))
	}
}

func TestGenerateEmbeddingsResumesPartialRun(t *testing.T) {
	contents := newFakeContentRepo(completedContent("c1", "a.md", "text"))
	chunks := newFakeChunkRepo()
	seedChunks(t, chunks, "c1", 2)
	if err := chunks.SaveEmbedding(context.Background(), "c1-ch0", []float32{0.5}); err != nil {
		t.Fatalf("seed existing vector: %v", err)
	}

	embedder := &fakeEmbedder{enabled: true, vector: []float32{0.1}}
	uc := NewEmbedUseCase(contents, chunks, embedder, discardLogger())
	if err := uc.GenerateEmbeddings(context.Background(), "c1"); err != nil {
		t.Fatalf("generate embeddings: %v", err)
	}

	// The pre-existing vector must survive untouched.
	if got := chunks.vectors["c1-ch0"]; len(got) != 1 || got[0] != 0.5 {
		t.Fatalf("existing vector overwritten: %v", got)
	}
	if _, ok := chunks.vectors["c1-ch1"]; !ok {
		t.Fatal("missing vector not filled in")
	}
}

func TestGenerateEmbeddingsDisabledIsNoop(t *testing.T) {
	uc := NewEmbedUseCase(newFakeContentRepo(), newFakeChunkRepo(), &fakeEmbedder{enabled: false}, discardLogger())
	if err := uc.GenerateEmbeddings(context.Background(), "missing"); err != nil {
		t.Fatalf("disabled embedder must no-op, got %v", err)
	}
}

func TestGenerateEmbeddingsRequiresParsedContent(t *testing.T) {
	content := completedContent("c1", "a.md", "text")
	content.State.Parsing = domain.ParsingRunning
	contents := newFakeContentRepo(content)
	uc := NewEmbedUseCase(contents, newFakeChunkRepo(), &fakeEmbedder{enabled: true}, discardLogger())

	err := uc.GenerateEmbeddings(context.Background(), "c1")
	if !domain.IsKind(err, domain.ErrStageNotReady) {
		t.Fatalf("expected stage-not-ready, got %v", err)
	}
}

func TestGenerateEmbeddingsServiceFailure(t *testing.T) {
	contents := newFakeContentRepo(completedContent("c1", "a.md", "text"))
	chunks := newFakeChunkRepo()
	seedChunks(t, chunks, "c1", 1)
	embedder := &fakeEmbedder{enabled: true, err: errors.New("quota exceeded")}
	uc := NewEmbedUseCase(contents, chunks, embedder, discardLogger())

	err := uc.GenerateEmbeddings(context.Background(), "c1")
	if !domain.IsKind(err, domain.ErrExternalService) {
		t.Fatalf("expected external-service error, got %v", err)
	}
}
