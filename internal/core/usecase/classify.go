package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

// excerptLen bounds the text sent to the model service.
const excerptLen = 1000

type ClassifyConfig struct {
	ModelTimeout   time.Duration
	MatchDelay     time.Duration
	MatchPriority  int
	ForceOverwrite bool
}

// ClassifyUseCase runs the authoritative model-backed stage. Its
// result always replaces whatever the quick stage produced; on outright
// failure the heuristic label is kept and the gate opened anyway.
type ClassifyUseCase struct {
	contents   ports.ContentRepository
	categories ports.CategoryRepository
	signals    ports.SignalRepository
	model      ports.ModelClassifier
	scheduler  ports.TaskScheduler
	cfg        ClassifyConfig
	logger     *slog.Logger
}

func NewClassifyUseCase(
	contents ports.ContentRepository,
	categories ports.CategoryRepository,
	signals ports.SignalRepository,
	model ports.ModelClassifier,
	scheduler ports.TaskScheduler,
	cfg ClassifyConfig,
	logger *slog.Logger,
) *ClassifyUseCase {
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 30 * time.Second
	}
	return &ClassifyUseCase{
		contents:   contents,
		categories: categories,
		signals:    signals,
		model:      model,
		scheduler:  scheduler,
		cfg:        cfg,
		logger:     logger,
	}
}

func (uc *ClassifyUseCase) Classify(ctx context.Context, contentID string) (*domain.ClassificationResult, error) {
	content, err := uc.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	if content.State.Parsing != domain.ParsingCompleted {
		return nil, domain.WrapError(domain.ErrStageNotReady, "classify",
			fmt.Errorf("parsing_status=%s", content.State.Parsing))
	}

	// Re-running against a settled ml label is a no-op; this is what
	// makes at-least-once delivery safe for this stage.
	if !uc.cfg.ForceOverwrite {
		primary, err := uc.categories.GetPrimary(ctx, contentID)
		if err != nil {
			return nil, fmt.Errorf("load primary classification: %w", err)
		}
		if primary != nil && primary.Source == domain.SourceML {
			category, err := uc.categories.GetByID(ctx, primary.CategoryID)
			if err != nil {
				return nil, fmt.Errorf("load category: %w", err)
			}
			return &domain.ClassificationResult{
				ContentID:    contentID,
				CategoryID:   primary.CategoryID,
				CategoryName: category.Name,
				Confidence:   primary.Confidence,
				Reasoning:    primary.Reasoning,
				Source:       domain.SourceML,
			}, nil
		}
	}

	if err := uc.contents.UpdateClassificationStatus(ctx, contentID, domain.ClassificationAIProcessing); err != nil {
		uc.logger.Warn("set classification_status=ai_processing", "content_id", contentID, "error", err)
	}

	label, err := uc.resolveLabel(ctx, content)
	if err != nil {
		// Degrade: the heuristic label stays, the stage is terminal,
		// and the user sees whatever exists rather than a spinner.
		if statusErr := uc.contents.UpdateClassificationStatus(ctx, contentID, domain.ClassificationError); statusErr != nil {
			uc.logger.Error("mark classification error", "content_id", contentID, "error", statusErr)
		}
		if gateErr := uc.contents.SetShowClassification(ctx, contentID, true); gateErr != nil {
			uc.logger.Error("open visibility gate after failure", "content_id", contentID, "error", gateErr)
		}
		uc.enqueueCollectionMatch(ctx, contentID)
		return nil, err
	}

	category, err := uc.categories.GetByName(ctx, label.Primary.Category)
	if err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", label.Primary.Category, err)
	}

	// Arbitration: the model result is authoritative regardless of
	// confidence. System-role rows go; user_rule rows survive.
	if err := uc.categories.DeleteSystemAssociations(ctx, contentID); err != nil {
		return nil, fmt.Errorf("delete superseded classifications: %w", err)
	}

	assoc := &domain.ContentCategory{
		ContentID:  contentID,
		CategoryID: category.ID,
		Confidence: label.Primary.Confidence,
		Reasoning:  label.Reasoning,
		Role:       domain.RolePrimarySystem,
		Source:     domain.SourceML,
	}
	if err := uc.categories.CreateAssociation(ctx, assoc); err != nil {
		return nil, fmt.Errorf("create primary association: %w", err)
	}

	for _, tag := range label.Secondary {
		if tag.Category == label.Primary.Category {
			continue
		}
		tagCategory, err := uc.categories.GetByName(ctx, tag.Category)
		if err != nil {
			uc.logger.Warn("skip unknown secondary tag", "content_id", contentID, "category", tag.Category)
			continue
		}
		tagAssoc := &domain.ContentCategory{
			ContentID:  contentID,
			CategoryID: tagCategory.ID,
			Confidence: tag.Confidence,
			Reasoning:  label.Reasoning,
			Role:       domain.RoleSecondaryTag,
			Source:     domain.SourceML,
		}
		if err := uc.categories.CreateAssociation(ctx, tagAssoc); err != nil {
			uc.logger.Warn("create secondary association", "content_id", contentID, "error", err)
		}
	}

	if err := uc.contents.SetShowClassification(ctx, contentID, true); err != nil {
		uc.logger.Warn("open visibility gate", "content_id", contentID, "error", err)
	}

	uc.appendSignal(ctx, content, label)
	uc.enqueueCollectionMatch(ctx, contentID)

	return &domain.ClassificationResult{
		ContentID:    contentID,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Confidence:   label.Primary.Confidence,
		Reasoning:    label.Reasoning,
		Source:       domain.SourceML,
	}, nil
}

// resolveLabel runs the arbitration ladder: model call, then taxonomy
// similarity repair of an out-of-taxonomy name, then the keyword
// scorer as the last resort before giving up entirely.
func (uc *ClassifyUseCase) resolveLabel(ctx context.Context, content *domain.Content) (domain.ModelLabel, error) {
	if !uc.model.Enabled() {
		return uc.keywordFallback(content), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.cfg.ModelTimeout)
	defer cancel()

	label, err := uc.model.Classify(callCtx, content.Title, excerpt(content.Text))
	if err != nil {
		if domain.IsKind(err, domain.ErrMalformedResponse) {
			uc.logger.Warn("malformed model response, falling back to keywords",
				"content_id", content.ID, "error", err)
			return uc.keywordFallback(content), nil
		}
		return domain.ModelLabel{}, domain.WrapError(domain.ErrExternalService, "model classify", err)
	}

	if !domain.IsSystemCategoryName(label.Primary.Category) {
		repaired, ok := closestCategory(label.Primary.Category)
		if !ok {
			uc.logger.Warn("out-of-taxonomy label, falling back to keywords",
				"content_id", content.ID, "label", label.Primary.Category)
			return uc.keywordFallback(content), nil
		}
		label.Primary.Category = repaired
	}
	label.Secondary = validSecondary(label.Secondary)
	return label, nil
}

func (uc *ClassifyUseCase) keywordFallback(content *domain.Content) domain.ModelLabel {
	scored := ScoreByRules(content)
	return domain.ModelLabel{
		Primary:   domain.NewScoredCategory(scored.Category, scored.Confidence),
		Reasoning: scored.Reasoning,
	}
}

func (uc *ClassifyUseCase) enqueueCollectionMatch(ctx context.Context, contentID string) {
	if uc.scheduler == nil {
		return
	}
	task := domain.NewTask(uuid.NewString(), domain.TaskMatchCollections, contentID, uc.cfg.MatchPriority, uc.cfg.MatchDelay)
	if err := uc.scheduler.Enqueue(ctx, task); err != nil {
		uc.logger.Error("enqueue collection matching", "content_id", contentID, "error", err)
	}
}

func (uc *ClassifyUseCase) appendSignal(ctx context.Context, content *domain.Content, label domain.ModelLabel) {
	signal := &domain.Signal{
		ID:        uuid.NewString(),
		ContentID: content.ID,
		Type:      domain.SignalClassification,
		Payload: map[string]any{
			"category":  label.Primary.Category,
			"secondary": label.Secondary,
			"reasoning": label.Reasoning,
			"source":    string(domain.SourceML),
		},
		Confidence:   label.Primary.Confidence,
		ModelVersion: uc.model.Model(),
	}
	_ = uc.signals.Append(ctx, signal)
}

// closestCategory repairs a near-miss label by substring and keyword
// similarity against taxonomy names and descriptions.
func closestCategory(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}
	for _, category := range domain.SystemTaxonomy {
		lowered := strings.ToLower(category.Name)
		if strings.Contains(needle, lowered) || strings.Contains(lowered, needle) {
			return category.Name, true
		}
	}
	for _, category := range domain.SystemTaxonomy {
		if strings.Contains(strings.ToLower(category.Description), needle) {
			return category.Name, true
		}
		for _, keyword := range category.Keywords {
			if strings.Contains(needle, strings.ToLower(keyword)) {
				return category.Name, true
			}
		}
	}
	return "", false
}

func validSecondary(tags []domain.ScoredCategory) []domain.ScoredCategory {
	out := make([]domain.ScoredCategory, 0, len(tags))
	for _, tag := range tags {
		if !domain.IsSystemCategoryName(tag.Category) {
			continue
		}
		out = append(out, domain.NewScoredCategory(tag.Category, tag.Confidence))
	}
	return out
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen]) + "..."
}
