package usecase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

func TestGenerateRulesExpandsSeedCluster(t *testing.T) {
	rules := GenerateRules("会议纪要", "")

	if !rules.AutoMatch {
		t.Fatal("expected auto-match enabled")
	}
	if rules.MatchThreshold != 0.6 {
		t.Fatalf("expected default threshold 0.6, got %v", rules.MatchThreshold)
	}
	for _, want := range []string{"会议", "纪要", "meeting", "minutes", "会议纪要"} {
		if !sliceContains(rules.Keywords, want) {
			t.Fatalf("expected keyword %q in %v", want, rules.Keywords)
		}
	}
	if !sliceContains(rules.TitlePatterns, ".*会议纪要.*") {
		t.Fatalf("expected name title pattern, got %v", rules.TitlePatterns)
	}
	// Name pattern plus at most five keyword patterns.
	if len(rules.TitlePatterns) > 6 {
		t.Fatalf("expected title patterns capped at 6, got %d", len(rules.TitlePatterns))
	}
	if !sliceContains(rules.ContentPatterns, "会议时间") {
		t.Fatalf("expected meeting content patterns, got %v", rules.ContentPatterns)
	}
}

func TestGenerateRulesKeywordsDeduped(t *testing.T) {
	rules := GenerateRules("旅游", "")
	seen := make(map[string]int)
	for _, keyword := range rules.Keywords {
		seen[keyword]++
	}
	if seen["旅游"] != 1 {
		t.Fatalf("expected 旅游 exactly once, got %d in %v", seen["旅游"], rules.Keywords)
	}
}

func TestTokenizeName(t *testing.T) {
	cases := []struct {
		name string
		want []string
	}{
		{"项目文档v2", []string{"项目文档"}},
		{"API设计", []string{"API", "设计"}},
		{"去", nil},
		{"ab", nil},
		{"meeting notes", []string{"meeting", "notes"}},
	}
	for _, tc := range cases {
		got := tokenizeName(tc.name)
		if len(got) != len(tc.want) {
			t.Fatalf("tokenizeName(%q) = %v, want %v", tc.name, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("tokenizeName(%q) = %v, want %v", tc.name, got, tc.want)
			}
		}
	}
}

func TestScoreMatchObviousOverrideForTicketPhoto(t *testing.T) {
	collection := &domain.Collection{
		ID:    "col-1",
		Name:  "旅游",
		Rules: GenerateRules("旅游", ""),
	}
	content := &domain.Content{
		ID:       "c1",
		Title:    "迪士尼乐园门票.jpg",
		Modality: domain.ModalityImage,
		Text: "【场景描述】游客在迪士尼乐园门口，背景是城堡和风景，适合旅游留念\n" +
			"【活动推理】家庭度假出游\n" +
			"【关键元素】门票, 城堡, 游客",
		State: domain.ProcessingState{Parsing: domain.ParsingCompleted},
	}

	score := ScoreMatch(content, collection)
	if !score.Obvious {
		t.Fatal("ticket photo against travel collection must trigger the obvious override")
	}
	if score.Total >= 0.6 {
		t.Fatalf("weighted score alone should stay below the default threshold, got %v", score.Total)
	}
	if !score.Matches(collection.Rules.MatchThreshold) {
		t.Fatalf("obvious override should accept at score %v", score.Total)
	}
}

func TestScoreMatchRejectsUnrelatedContent(t *testing.T) {
	collection := &domain.Collection{
		ID:    "col-1",
		Name:  "旅游",
		Rules: GenerateRules("旅游", ""),
	}
	content := &domain.Content{
		ID:       "c1",
		Title:    "数据库索引优化.md",
		Modality: domain.ModalityText,
		Text:     "覆盖索引可以避免回表，联合索引遵循最左前缀原则。",
		State:    domain.ProcessingState{Parsing: domain.ParsingCompleted},
	}

	score := ScoreMatch(content, collection)
	if score.Obvious {
		t.Fatal("no trigger keyword in title, obvious must stay false")
	}
	if score.Matches(collection.Rules.MatchThreshold) {
		t.Fatalf("unrelated content must not match, score %v", score.Total)
	}
}

func TestScoreMatchMeetingDocument(t *testing.T) {
	collection := &domain.Collection{
		ID:    "col-1",
		Name:  "会议纪要",
		Rules: GenerateRules("会议纪要", ""),
	}
	content := &domain.Content{
		ID:       "c1",
		Title:    "项目周会会议纪要",
		Modality: domain.ModalityText,
		Text:     "会议时间: 9月1日\n参会人员: 张三、李四\n会议议题: 项目进度\n决议事项: 发布延期一周",
		State:    domain.ProcessingState{Parsing: domain.ParsingCompleted},
	}

	score := ScoreMatch(content, collection)
	if score.Title <= 0 || score.Body <= 0 {
		t.Fatalf("expected title and body components, got %+v", score)
	}
	if score.Structured != 0 {
		t.Fatalf("text modality must not receive structured score, got %v", score.Structured)
	}
	if !score.Matches(collection.Rules.MatchThreshold) {
		t.Fatalf("meeting minutes must fold into the meeting collection, score %v", score.Total)
	}
}

func TestParseImageAnalysis(t *testing.T) {
	text := "【场景描述】海边日落，沙滩上有脚印\n" +
		"【活动推断】傍晚散步\n" +
		"【关键元素】沙滩，日落, 海浪\n" +
		"【分类建议】生活记录"

	analysis := ParseImageAnalysis(text)
	if analysis.SceneDescription != "海边日落，沙滩上有脚印" {
		t.Fatalf("unexpected scene %q", analysis.SceneDescription)
	}
	if analysis.ActivityInference != "傍晚散步" {
		t.Fatalf("expected 活动推断 alias handled, got %q", analysis.ActivityInference)
	}
	if len(analysis.KeyElements) != 3 {
		t.Fatalf("expected 3 key elements, got %v", analysis.KeyElements)
	}
	if analysis.ClassificationSuggestion != "生活记录" {
		t.Fatalf("unexpected suggestion %q", analysis.ClassificationSuggestion)
	}
}

func TestParseImageAnalysisPlainText(t *testing.T) {
	analysis := ParseImageAnalysis("just ordinary text without sections")
	if analysis.SceneDescription != "" || len(analysis.KeyElements) != 0 {
		t.Fatalf("expected empty analysis, got %+v", analysis)
	}
}

func TestLoadSeedOverlayMergesClusters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	overlay := "clusters:\n  财务:\n    - 发票\n    - 报销\n"
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	if err := LoadSeedOverlay(path); err != nil {
		t.Fatalf("load overlay: %v", err)
	}
	defer delete(seedClusters, "财务")

	rules := GenerateRules("财务报表", "")
	if !sliceContains(rules.Keywords, "发票") {
		t.Fatalf("expected overlay keyword 发票, got %v", rules.Keywords)
	}
}

func TestLoadSeedOverlayMissingFileIsNoop(t *testing.T) {
	if err := LoadSeedOverlay(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing overlay must not error, got %v", err)
	}
}
