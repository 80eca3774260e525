package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

func completedContent(id, title, text string) *domain.Content {
	return &domain.Content{
		ID:        id,
		SourceURI: title,
		Title:     title,
		Text:      text,
		Modality:  domain.ModalityText,
		State: domain.ProcessingState{
			Parsing:        domain.ParsingCompleted,
			Classification: domain.ClassificationPending,
		},
	}
}

func TestQuickClassifyMeetingMinutes(t *testing.T) {
	content := completedContent("c1", "项目会议纪要.docx", "本次会议讨论了项目进度，形成如下决议。")
	contents := newFakeContentRepo(content)
	categories := newFakeCategoryRepo()
	signals := &fakeSignalRepo{}

	uc := NewQuickClassifyUseCase(contents, categories, signals)
	result, err := uc.QuickClassify(context.Background(), "c1", true)
	if err != nil {
		t.Fatalf("quick classify: %v", err)
	}

	if result.CategoryName != "职场商务" {
		t.Fatalf("expected 职场商务, got %s", result.CategoryName)
	}
	if result.Confidence < 0.5 {
		t.Fatalf("expected confidence >= 0.5, got %v", result.Confidence)
	}
	if !strings.Contains(result.Reasoning, "关键词匹配") {
		t.Fatalf("expected keyword-match reasoning, got %q", result.Reasoning)
	}
	if !strings.HasPrefix(result.Reasoning, "快速分类: ") {
		t.Fatalf("expected quick prefix, got %q", result.Reasoning)
	}

	updated, _ := contents.GetByID(context.Background(), "c1")
	if updated.State.Classification != domain.ClassificationQuickDone {
		t.Fatalf("expected quick_done, got %s", updated.State.Classification)
	}
	if !updated.State.ShowClassification {
		t.Fatal("expected visibility gate open")
	}
}

func TestQuickClassifyIsIdempotent(t *testing.T) {
	content := completedContent("c1", "项目会议纪要.docx", "会议决议")
	contents := newFakeContentRepo(content)
	categories := newFakeCategoryRepo()
	uc := NewQuickClassifyUseCase(contents, categories, &fakeSignalRepo{})

	first, err := uc.QuickClassify(context.Background(), "c1", false)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := uc.QuickClassify(context.Background(), "c1", false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.CategoryID != second.CategoryID {
		t.Fatalf("expected stable category, got %s then %s", first.CategoryID, second.CategoryID)
	}
	primaries := 0
	for _, assoc := range categories.associationsFor("c1") {
		if assoc.Role == domain.RolePrimarySystem {
			primaries++
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary association, got %d", primaries)
	}
}

func TestQuickClassifyRequiresParsedContent(t *testing.T) {
	content := completedContent("c1", "a.txt", "text")
	content.State.Parsing = domain.ParsingPending
	contents := newFakeContentRepo(content)
	uc := NewQuickClassifyUseCase(contents, newFakeCategoryRepo(), &fakeSignalRepo{})

	_, err := uc.QuickClassify(context.Background(), "c1", false)
	if !domain.IsKind(err, domain.ErrStageNotReady) {
		t.Fatalf("expected stage-not-ready, got %v", err)
	}
}

func TestScoreByRulesDefaultsWhenNothingMatches(t *testing.T) {
	content := completedContent("c1", "random.bin", "zzzz qqqq")
	scored := ScoreByRules(content)

	if scored.Category != domain.DefaultCategoryName {
		t.Fatalf("expected default category, got %s", scored.Category)
	}
	if scored.Confidence != 0.3 {
		t.Fatalf("expected confidence 0.3, got %v", scored.Confidence)
	}
	if scored.Reasoning != "无明显特征，使用默认分类" {
		t.Fatalf("unexpected reasoning %q", scored.Reasoning)
	}
}

func TestScoreByRulesConfidenceClamped(t *testing.T) {
	// Many keyword hits must not push confidence past 0.8.
	content := completedContent("c1", "会议项目工作报告合同客户销售.docx",
		"会议 项目 工作 报告 合同 客户 销售 管理 营销 战略")
	scored := ScoreByRules(content)

	if scored.Category != "职场商务" {
		t.Fatalf("expected 职场商务, got %s", scored.Category)
	}
	if scored.Confidence != 0.8 {
		t.Fatalf("expected clamped confidence 0.8, got %v", scored.Confidence)
	}
}

func TestScoreByRulesScansOnlyLeadingText(t *testing.T) {
	// Keyword buried past the scan window must not count.
	padding := strings.Repeat("废", 600)
	content := completedContent("c1", "p1", padding+"机器学习")
	scored := ScoreByRules(content)

	if scored.Category != domain.DefaultCategoryName || scored.Confidence != 0.3 {
		t.Fatalf("expected default fallback for buried keyword, got %s at %v", scored.Category, scored.Confidence)
	}
}
