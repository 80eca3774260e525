package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

// quickScanLen bounds how much body text the rule scorer looks at.
const quickScanLen = 500

type QuickClassifyUseCase struct {
	contents   ports.ContentRepository
	categories ports.CategoryRepository
	signals    ports.SignalRepository
}

func NewQuickClassifyUseCase(
	contents ports.ContentRepository,
	categories ports.CategoryRepository,
	signals ports.SignalRepository,
) *QuickClassifyUseCase {
	return &QuickClassifyUseCase{
		contents:   contents,
		categories: categories,
		signals:    signals,
	}
}

// QuickClassify assigns the provisional heuristic label. It never
// blocks on an external service; its only purpose is giving the UI a
// label within milliseconds while the model stage runs. updateDisplay
// opens the visibility gate for display-eligible ingestion paths.
func (uc *QuickClassifyUseCase) QuickClassify(ctx context.Context, contentID string, updateDisplay bool) (*domain.ClassificationResult, error) {
	content, err := uc.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	if content.State.Parsing != domain.ParsingCompleted {
		return nil, domain.WrapError(domain.ErrStageNotReady, "quick classify",
			fmt.Errorf("parsing_status=%s", content.State.Parsing))
	}

	// A system classification already present means either this task
	// already ran or the model stage won the race. Both are fine.
	exists, err := uc.categories.HasSystemClassification(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("check existing classification: %w", err)
	}
	if exists {
		primary, err := uc.categories.GetPrimary(ctx, contentID)
		if err != nil {
			return nil, fmt.Errorf("load primary classification: %w", err)
		}
		return uc.resultFromAssociation(ctx, primary)
	}

	scored := ScoreByRules(content)

	category, err := uc.categories.GetByName(ctx, scored.Category)
	if err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", scored.Category, err)
	}

	assoc := &domain.ContentCategory{
		ContentID:  contentID,
		CategoryID: category.ID,
		Confidence: domain.ClampConfidence(scored.Confidence),
		Reasoning:  "快速分类: " + scored.Reasoning,
		Role:       domain.RolePrimarySystem,
		Source:     domain.SourceHeuristic,
	}
	if err := uc.categories.CreateAssociation(ctx, assoc); err != nil {
		return nil, fmt.Errorf("create heuristic association: %w", err)
	}

	if err := uc.contents.UpdateClassificationStatus(ctx, contentID, domain.ClassificationQuickDone); err != nil {
		return nil, fmt.Errorf("set classification_status=quick_done: %w", err)
	}
	if updateDisplay {
		if err := uc.contents.SetShowClassification(ctx, contentID, true); err != nil {
			return nil, fmt.Errorf("open visibility gate: %w", err)
		}
	}

	uc.appendSignal(ctx, content, category, scored)

	return &domain.ClassificationResult{
		ContentID:    contentID,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Confidence:   assoc.Confidence,
		Reasoning:    assoc.Reasoning,
		Source:       domain.SourceHeuristic,
	}, nil
}

func (uc *QuickClassifyUseCase) resultFromAssociation(ctx context.Context, assoc *domain.ContentCategory) (*domain.ClassificationResult, error) {
	if assoc == nil {
		return nil, domain.WrapError(domain.ErrCategoryNotFound, "quick classify", fmt.Errorf("no primary association"))
	}
	category, err := uc.categories.GetByID(ctx, assoc.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("load category: %w", err)
	}
	return &domain.ClassificationResult{
		ContentID:    assoc.ContentID,
		CategoryID:   assoc.CategoryID,
		CategoryName: category.Name,
		Confidence:   assoc.Confidence,
		Reasoning:    assoc.Reasoning,
		Source:       assoc.Source,
	}, nil
}

func (uc *QuickClassifyUseCase) appendSignal(ctx context.Context, content *domain.Content, category *domain.Category, scored RuleScore) {
	signal := &domain.Signal{
		ID:        uuid.NewString(),
		ContentID: content.ID,
		Type:      domain.SignalClassification,
		Payload: map[string]any{
			"category":  category.Name,
			"score":     scored.Score,
			"reasoning": scored.Reasoning,
			"source":    string(domain.SourceHeuristic),
		},
		Confidence: scored.Confidence,
	}
	// Audit is best effort: a failed append never blocks the label.
	_ = uc.signals.Append(ctx, signal)
}

// RuleScore is the outcome of the deterministic keyword scorer.
type RuleScore struct {
	Category   string
	Score      int
	Confidence float64
	Reasoning  string
}

// ScoreByRules runs the keyword/pattern/extension scoring over the
// fixed taxonomy: 2 points per keyword hit in title plus leading text,
// 1 per filename-pattern hit, 1 for an extension match. Ties break in
// taxonomy declaration order; an all-zero board falls back to the
// default category.
func ScoreByRules(content *domain.Content) RuleScore {
	body := content.Text
	if len([]rune(body)) > quickScanLen {
		body = string([]rune(body)[:quickScanLen])
	}
	haystack := strings.ToLower(content.Title + " " + body)
	extension := content.FileExtension()

	best := RuleScore{}
	found := false
	for _, category := range domain.SystemTaxonomy {
		score := 0
		var reasons []string

		keywordHits := 0
		for _, keyword := range category.Keywords {
			if strings.Contains(haystack, strings.ToLower(keyword)) {
				keywordHits++
				score += 2
			}
		}
		if keywordHits > 0 {
			reasons = append(reasons, fmt.Sprintf("关键词匹配(%d个)", keywordHits))
		}

		patternHits := 0
		for _, pattern := range category.FilePattern {
			if strings.Contains(haystack, pattern) {
				patternHits++
				score++
			}
		}
		if patternHits > 0 {
			reasons = append(reasons, fmt.Sprintf("文件名模式匹配(%d个)", patternHits))
		}

		if extension != "" && sliceContains(category.Extensions, extension) {
			score++
			reasons = append(reasons, fmt.Sprintf("文件类型匹配(%s)", extension))
		}

		if score > best.Score || !found {
			found = true
			best = RuleScore{
				Category:  category.Name,
				Score:     score,
				Reasoning: "基于规则匹配: " + strings.Join(reasons, ", "),
			}
		}
	}

	if best.Score == 0 {
		return RuleScore{
			Category:   domain.DefaultCategoryName,
			Score:      0,
			Confidence: 0.3,
			Reasoning:  "无明显特征，使用默认分类",
		}
	}

	best.Confidence = clampScoreConfidence(float64(best.Score) / 10)
	return best
}

func clampScoreConfidence(v float64) float64 {
	if v < 0.4 {
		return 0.4
	}
	if v > 0.8 {
		return 0.8
	}
	return v
}

func sliceContains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
