package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

type CollectionConfig struct {
	// BackfillWorkers bounds the fan-out when re-matching the whole
	// corpus against a new collection.
	BackfillWorkers int
	RuleOverlayPath string
}

// CollectionUseCase creates user collections with generated matching
// rules and folds contents into them.
type CollectionUseCase struct {
	collections ports.CollectionRepository
	categories  ports.CategoryRepository
	contents    ports.ContentRepository
	signals     ports.SignalRepository
	cfg         CollectionConfig
	logger      *slog.Logger
}

func NewCollectionUseCase(
	collections ports.CollectionRepository,
	categories ports.CategoryRepository,
	contents ports.ContentRepository,
	signals ports.SignalRepository,
	cfg CollectionConfig,
	logger *slog.Logger,
) (*CollectionUseCase, error) {
	if cfg.BackfillWorkers <= 0 {
		cfg.BackfillWorkers = 4
	}
	if err := LoadSeedOverlay(cfg.RuleOverlayPath); err != nil {
		return nil, err
	}
	return &CollectionUseCase{
		collections: collections,
		categories:  categories,
		contents:    contents,
		signals:     signals,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// CreateCollection creates the backing user category, generates the
// auto-match rules from the name and description, and persists both.
func (uc *CollectionUseCase) CreateCollection(ctx context.Context, name, description string) (*domain.Collection, error) {
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create collection", fmt.Errorf("empty name"))
	}

	category := &domain.Category{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		IsSystem:    false,
	}
	if err := uc.categories.CreateUserCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("create backing category: %w", err)
	}

	collection := &domain.Collection{
		ID:            uuid.NewString(),
		Name:          name,
		Description:   description,
		CategoryID:    category.ID,
		AutoGenerated: true,
		Rules:         GenerateRules(name, description),
	}
	if err := uc.collections.Create(ctx, collection); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	uc.logger.Info("collection created",
		"collection_id", collection.ID,
		"name", name,
		"keywords", len(collection.Rules.Keywords))
	return collection, nil
}

// BackfillCollection re-checks every existing content against one
// collection's rules. Individual failures are counted, not fatal.
func (uc *CollectionUseCase) BackfillCollection(ctx context.Context, collectionID string) (int, int, error) {
	collection, err := uc.collections.GetByID(ctx, collectionID)
	if err != nil {
		return 0, 0, fmt.Errorf("load collection: %w", err)
	}
	uc.ensureRules(ctx, collection)
	if !collection.Rules.AutoMatch {
		return 0, 0, nil
	}

	ids, err := uc.contents.ListIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list contents: %w", err)
	}

	var matched, failed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.cfg.BackfillWorkers)
	for _, id := range ids {
		contentID := id
		group.Go(func() error {
			ok, err := uc.matchOne(groupCtx, contentID, collection)
			if err != nil {
				failed.Add(1)
				uc.logger.Warn("backfill match failed", "content_id", contentID, "error", err)
				return nil
			}
			if ok {
				matched.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return int(matched.Load()), int(failed.Load()), err
	}
	return int(matched.Load()), int(failed.Load()), nil
}

// MatchCollections checks one content against every auto-matching user
// collection and records an association per match, returning the ids of
// the matched collections. It also closes the classification lifecycle:
// once matching has run, the content is done.
func (uc *CollectionUseCase) MatchCollections(ctx context.Context, contentID string) ([]string, error) {
	content, err := uc.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	if content.State.Parsing != domain.ParsingCompleted {
		return nil, domain.WrapError(domain.ErrStageNotReady, "match collections",
			fmt.Errorf("parsing_status=%s", content.State.Parsing))
	}

	collections, err := uc.collections.ListUserCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	var matchedIDs []string
	for i := range collections {
		collection := &collections[i]
		uc.ensureRules(ctx, collection)
		if !collection.Rules.AutoMatch {
			continue
		}
		score := ScoreMatch(content, collection)
		if !score.Matches(collection.Rules.MatchThreshold) {
			continue
		}
		if err := uc.associate(ctx, content, collection, score); err != nil {
			uc.logger.Warn("collection association failed",
				"content_id", contentID, "collection_id", collection.ID, "error", err)
			continue
		}
		matchedIDs = append(matchedIDs, collection.ID)
	}

	// Matching is the last stage; settle the lifecycle regardless of
	// whether anything matched. CanTransition keeps error terminal.
	if content.State.Classification.CanTransition(domain.ClassificationCompleted) {
		if err := uc.contents.UpdateClassificationStatus(ctx, contentID, domain.ClassificationCompleted); err != nil {
			uc.logger.Warn("set classification_status=completed", "content_id", contentID, "error", err)
		}
	}

	return matchedIDs, nil
}

// ensureRules regenerates and persists auto-match rules for collections
// stored before rule generation existed.
func (uc *CollectionUseCase) ensureRules(ctx context.Context, collection *domain.Collection) {
	if !collection.Rules.Empty() {
		return
	}
	collection.Rules = GenerateRules(collection.Name, collection.Description)
	if err := uc.collections.SaveRules(ctx, collection.ID, collection.Rules); err != nil {
		uc.logger.Warn("persist regenerated rules",
			"collection_id", collection.ID, "error", err)
	}
}

func (uc *CollectionUseCase) matchOne(ctx context.Context, contentID string, collection *domain.Collection) (bool, error) {
	content, err := uc.contents.GetByID(ctx, contentID)
	if err != nil {
		return false, err
	}
	if content.State.Parsing != domain.ParsingCompleted {
		return false, nil
	}
	score := ScoreMatch(content, collection)
	if !score.Matches(collection.Rules.MatchThreshold) {
		return false, nil
	}
	if err := uc.associate(ctx, content, collection, score); err != nil {
		return false, err
	}
	return true, nil
}

// associate writes the user_rule association. Idempotent on the
// (content, category, reasoning) triple so re-delivered tasks and
// backfills never double-count.
func (uc *CollectionUseCase) associate(ctx context.Context, content *domain.Content, collection *domain.Collection, score MatchScore) error {
	reasoning := "自动匹配到合集: " + collection.Name

	exists, err := uc.categories.HasAssociation(ctx, content.ID, collection.CategoryID, reasoning)
	if err != nil {
		return fmt.Errorf("check association: %w", err)
	}
	if exists {
		return nil
	}

	assoc := &domain.ContentCategory{
		ContentID:  content.ID,
		CategoryID: collection.CategoryID,
		Confidence: 0.8,
		Reasoning:  reasoning,
		Role:       domain.RoleUserRule,
		Source:     domain.SourceRule,
	}
	if err := uc.categories.CreateAssociation(ctx, assoc); err != nil {
		return fmt.Errorf("create association: %w", err)
	}

	signal := &domain.Signal{
		ID:        uuid.NewString(),
		ContentID: content.ID,
		Type:      domain.SignalCollectionMatch,
		Payload: map[string]any{
			"collection":       collection.Name,
			"collection_id":    collection.ID,
			"score":            score.Total,
			"title_score":      score.Title,
			"body_score":       score.Body,
			"structured_score": score.Structured,
			"obvious_match":    score.Obvious,
		},
		Confidence: score.Total,
	}
	_ = uc.signals.Append(ctx, signal)
	return nil
}
