package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

type fakeContentRepo struct {
	mu         sync.Mutex
	contents   map[string]*domain.Content
	setTextErr error
}

func newFakeContentRepo(contents ...*domain.Content) *fakeContentRepo {
	repo := &fakeContentRepo{contents: make(map[string]*domain.Content)}
	for _, content := range contents {
		repo.contents[content.ID] = content
	}
	return repo
}

func (r *fakeContentRepo) Create(_ context.Context, content *domain.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents[content.ID] = content
	return nil
}

func (r *fakeContentRepo) GetByID(_ context.Context, id string) (*domain.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.contents[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrContentNotFound, "get content", fmt.Errorf("id=%s", id))
	}
	copied := *content
	return &copied, nil
}

func (r *fakeContentRepo) ListIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.contents))
	for id := range r.contents {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeContentRepo) SetText(_ context.Context, id, text string, modality domain.Modality) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setTextErr != nil {
		return r.setTextErr
	}
	if content, ok := r.contents[id]; ok {
		content.Text = text
		content.Modality = modality
	}
	return nil
}

func (r *fakeContentRepo) UpdateParsingStatus(_ context.Context, id string, status domain.ParsingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if content, ok := r.contents[id]; ok && content.State.Parsing.CanTransition(status) {
		content.State.Parsing = status
	}
	return nil
}

func (r *fakeContentRepo) UpdateClassificationStatus(_ context.Context, id string, status domain.ClassificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if content, ok := r.contents[id]; ok && content.State.Classification.CanTransition(status) {
		content.State.Classification = status
	}
	return nil
}

func (r *fakeContentRepo) SetShowClassification(_ context.Context, id string, show bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if content, ok := r.contents[id]; ok {
		content.State.ShowClassification = show
	}
	return nil
}

type fakeCategoryRepo struct {
	mu           sync.Mutex
	categories   map[string]*domain.Category
	associations []domain.ContentCategory
}

func newFakeCategoryRepo() *fakeCategoryRepo {
	repo := &fakeCategoryRepo{categories: make(map[string]*domain.Category)}
	for i, category := range domain.SystemTaxonomy {
		repo.categories[category.Name] = &domain.Category{
			ID:       fmt.Sprintf("sys-%d", i),
			Name:     category.Name,
			IsSystem: true,
		}
	}
	return repo
}

func (r *fakeCategoryRepo) EnsureSystemCategories(context.Context) error { return nil }

func (r *fakeCategoryRepo) GetByName(_ context.Context, name string) (*domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	category, ok := r.categories[name]
	if !ok {
		return nil, domain.WrapError(domain.ErrCategoryNotFound, "get category", fmt.Errorf("name=%s", name))
	}
	return category, nil
}

func (r *fakeCategoryRepo) GetByID(_ context.Context, id string) (*domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, category := range r.categories {
		if category.ID == id {
			return category, nil
		}
	}
	return nil, domain.WrapError(domain.ErrCategoryNotFound, "get category", fmt.Errorf("id=%s", id))
}

func (r *fakeCategoryRepo) CreateUserCategory(_ context.Context, category *domain.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[category.Name] = category
	return nil
}

func (r *fakeCategoryRepo) GetPrimary(_ context.Context, contentID string) (*domain.ContentCategory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.ContentCategory
	for i := range r.associations {
		assoc := &r.associations[i]
		if assoc.ContentID != contentID || assoc.Role != domain.RolePrimarySystem {
			continue
		}
		if best == nil || (assoc.Source == domain.SourceML && best.Source != domain.SourceML) {
			best = assoc
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (r *fakeCategoryRepo) HasSystemClassification(_ context.Context, contentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, assoc := range r.associations {
		if assoc.ContentID == contentID && assoc.Role == domain.RolePrimarySystem {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCategoryRepo) HasAssociation(_ context.Context, contentID, categoryID, reasoning string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, assoc := range r.associations {
		if assoc.ContentID == contentID && assoc.CategoryID == categoryID && assoc.Reasoning == reasoning {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCategoryRepo) CreateAssociation(_ context.Context, assoc *domain.ContentCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.associations = append(r.associations, *assoc)
	return nil
}

func (r *fakeCategoryRepo) DeleteSystemAssociations(_ context.Context, contentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.associations[:0]
	for _, assoc := range r.associations {
		if assoc.ContentID == contentID && assoc.Role != domain.RoleUserRule {
			continue
		}
		kept = append(kept, assoc)
	}
	r.associations = kept
	return nil
}

func (r *fakeCategoryRepo) associationsFor(contentID string) []domain.ContentCategory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ContentCategory
	for _, assoc := range r.associations {
		if assoc.ContentID == contentID {
			out = append(out, assoc)
		}
	}
	return out
}

type fakeChunkRepo struct {
	mu        sync.Mutex
	chunks    []domain.Chunk
	vectors   map[string][]float32
	createErr error
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{vectors: make(map[string][]float32)}
}

func (r *fakeChunkRepo) CreateBatch(_ context.Context, chunks []domain.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.chunks = append(r.chunks, chunks...)
	return nil
}

func (r *fakeChunkRepo) ListByContent(_ context.Context, contentID string) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Chunk
	for _, chunk := range r.chunks {
		if chunk.ContentID == contentID {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) ListMissingEmbeddings(_ context.Context, contentID string) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Chunk
	for _, chunk := range r.chunks {
		if chunk.ContentID == contentID {
			if _, ok := r.vectors[chunk.ID]; !ok {
				out = append(out, chunk)
			}
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) SaveEmbedding(_ context.Context, chunkID string, vector []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectors[chunkID] = vector
	return nil
}

func (r *fakeChunkRepo) chunkCount(contentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, chunk := range r.chunks {
		if chunk.ContentID == contentID {
			n++
		}
	}
	return n
}

type fakeStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = raw
	return nil
}

func (s *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("no blob %s", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (e *fakeExtractor) Extract(context.Context, string, string) (string, map[string]string, error) {
	if e.err != nil {
		return "", nil, e.err
	}
	return e.text, map[string]string{"extractor": "fake"}, nil
}

// lineChunker splits on newlines, one chunk per non-empty line.
type lineChunker struct{}

func (lineChunker) Split(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

type fakeCollectionRepo struct {
	mu          sync.Mutex
	collections map[string]*domain.Collection
}

func newFakeCollectionRepo(collections ...*domain.Collection) *fakeCollectionRepo {
	repo := &fakeCollectionRepo{collections: make(map[string]*domain.Collection)}
	for _, collection := range collections {
		repo.collections[collection.ID] = collection
	}
	return repo
}

func (r *fakeCollectionRepo) Create(_ context.Context, collection *domain.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[collection.ID] = collection
	return nil
}

func (r *fakeCollectionRepo) GetByID(_ context.Context, id string) (*domain.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	collection, ok := r.collections[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrCollectionNotFound, "get collection", fmt.Errorf("id=%s", id))
	}
	copied := *collection
	return &copied, nil
}

func (r *fakeCollectionRepo) ListUserCollections(context.Context) ([]domain.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Collection, 0, len(r.collections))
	for _, collection := range r.collections {
		out = append(out, *collection)
	}
	return out, nil
}

func (r *fakeCollectionRepo) SaveRules(_ context.Context, collectionID string, rules domain.QueryRules) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if collection, ok := r.collections[collectionID]; ok {
		collection.Rules = rules
	}
	return nil
}

type fakeSignalRepo struct {
	mu      sync.Mutex
	signals []domain.Signal
}

func (r *fakeSignalRepo) Append(_ context.Context, signal *domain.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, *signal)
	return nil
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []domain.Task
}

func (s *fakeScheduler) Enqueue(_ context.Context, task domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *fakeScheduler) Subscribe(ctx context.Context, _ domain.QueueClass, _ ports.TaskHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeScheduler) kinds() []domain.TaskKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TaskKind, len(s.tasks))
	for i, task := range s.tasks {
		out[i] = task.Kind
	}
	return out
}

type fakeModel struct {
	enabled bool
	label   domain.ModelLabel
	err     error
	calls   int
}

func (m *fakeModel) Classify(context.Context, string, string) (domain.ModelLabel, error) {
	m.calls++
	if m.err != nil {
		return domain.ModelLabel{}, m.err
	}
	return m.label, nil
}

func (m *fakeModel) Enabled() bool { return m.enabled }
func (m *fakeModel) Model() string { return "test-model" }

type fakeEmbedder struct {
	enabled bool
	vector  []float32
	err     error
}

func (e *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func (e *fakeEmbedder) Enabled() bool { return e.enabled }
