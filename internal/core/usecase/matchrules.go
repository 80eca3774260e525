package usecase

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

// seedClusters maps domain terms to keyword clusters used when a
// collection name names (or contains) a recognized domain.
var seedClusters = map[string][]string{
	"会议纪要": {"会议", "纪要", "meeting", "minutes", "议题", "决议", "参会"},
	"项目文档": {"项目", "project", "计划", "方案", "需求", "设计"},
	"技术文档": {"技术", "开发", "代码", "API", "架构", "设计"},
	"工作总结": {"总结", "汇报", "报告", "review", "summary"},
	"学习笔记": {"学习", "笔记", "note", "教程", "课程", "培训"},
	"重要文档": {"重要", "关键", "核心", "urgent", "important"},
	"旅游":   {"旅游", "旅行", "度假", "vacation", "travel", "景点", "风景"},
	"健康":   {"健康", "医疗", "运动", "fitness", "health", "锻炼"},
	"美食":   {"美食", "餐厅", "菜谱", "food", "recipe", "烹饪"},
}

// obviousMatches lowers the effective threshold to 0.3 when a trigger
// keyword appears in the title of a content checked against a
// collection whose name contains the map key. Catches cases like a
// ticket photo against a travel collection, where the weighted score
// alone stays below the default threshold.
var obviousMatches = map[string][]string{
	"旅游": {"迪士尼", "乐园", "门票", "机票", "酒店", "景区", "攻略"},
	"旅行": {"迪士尼", "乐园", "门票", "机票", "酒店", "景区", "攻略"},
	"会议": {"会议", "纪要", "例会"},
	"美食": {"餐厅", "菜单", "菜谱", "外卖"},
	"健康": {"体检", "化验", "处方", "病历"},
}

const obviousMatchThreshold = 0.3

type seedOverlay struct {
	Clusters map[string][]string `yaml:"clusters"`
}

// LoadSeedOverlay merges extra term clusters from a YAML file into the
// seed dictionary. Missing path is not an error.
func LoadSeedOverlay(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read rule overlay: %w", err)
	}
	var overlay seedOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse rule overlay: %w", err)
	}
	for name, terms := range overlay.Clusters {
		seedClusters[name] = append(seedClusters[name], terms...)
	}
	return nil
}

// GenerateRules derives the auto-match rules for a collection from its
// name and optional description.
func GenerateRules(name, description string) domain.QueryRules {
	keywords := keywordsFromName(name)
	if description != "" {
		keywords = append(keywords, keywordsFromDescription(description)...)
	}
	keywords = dedupeStrings(keywords)

	return domain.QueryRules{
		Keywords:        keywords,
		TitlePatterns:   titlePatterns(name, keywords),
		ContentPatterns: contentPatterns(keywords),
		AutoMatch:       true,
		MatchThreshold:  0.6,
	}
}

func keywordsFromName(name string) []string {
	var keywords []string

	if cluster, ok := seedClusters[name]; ok {
		keywords = append(keywords, cluster...)
	}
	for seed, cluster := range seedClusters {
		if seed == name {
			continue
		}
		if strings.Contains(name, seed) || strings.Contains(seed, name) {
			keywords = append(keywords, cluster...)
		}
	}

	keywords = append(keywords, tokenizeName(name)...)
	keywords = append(keywords, name)
	return keywords
}

// tokenizeName splits a collection name into CJK runs of at least two
// characters and Latin runs of at least three.
func tokenizeName(name string) []string {
	var tokens []string
	var cjk, latin []rune
	flush := func() {
		if len(cjk) >= 2 {
			tokens = append(tokens, string(cjk))
		}
		if len(latin) >= 3 {
			tokens = append(tokens, string(latin))
		}
		cjk = cjk[:0]
		latin = latin[:0]
	}
	for _, r := range name {
		switch {
		case unicode.Is(unicode.Han, r):
			if len(latin) > 0 {
				flush()
			}
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if len(cjk) > 0 {
				flush()
			}
			latin = append(latin, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func keywordsFromDescription(description string) []string {
	common := []string{
		"会议", "项目", "工作", "技术", "学习", "重要", "文档", "资料",
		"meeting", "project", "work", "tech", "study", "important", "document",
	}
	lowered := strings.ToLower(description)
	var out []string
	for _, keyword := range common {
		if strings.Contains(lowered, keyword) {
			out = append(out, keyword)
		}
	}
	return out
}

func titlePatterns(name string, keywords []string) []string {
	patterns := []string{".*" + regexp.QuoteMeta(name) + ".*"}
	for i, keyword := range keywords {
		if i >= 5 {
			break
		}
		patterns = append(patterns, ".*"+regexp.QuoteMeta(keyword)+".*")
	}
	return patterns
}

func contentPatterns(keywords []string) []string {
	var patterns []string
	if anyKeyword(keywords, "会议", "meeting", "纪要", "minutes") {
		patterns = append(patterns,
			"会议时间", "参会人员", "会议议题", "会议内容", "决议事项",
			"meeting time", "attendees", "agenda", "action items")
	}
	if anyKeyword(keywords, "项目", "project") {
		patterns = append(patterns,
			"项目背景", "项目目标", "里程碑", "deliverable", "timeline")
	}
	return patterns
}

func anyKeyword(keywords []string, targets ...string) bool {
	for _, keyword := range keywords {
		for _, target := range targets {
			if keyword == target {
				return true
			}
		}
	}
	return false
}

// MatchScore is the weighted total plus its sub-scores, kept for the
// audit signal.
type MatchScore struct {
	Title      float64
	Body       float64
	Structured float64
	Total      float64
	Obvious    bool
}

// ScoreMatch computes the weighted match score of a content against a
// collection's rules: title 0.3, body 0.4, structured image fields 0.3.
func ScoreMatch(content *domain.Content, collection *domain.Collection) MatchScore {
	rules := collection.Rules
	score := MatchScore{
		Title: titleMatchScore(content.Title, rules),
		Body:  bodyMatchScore(content.Text, rules),
	}
	if content.Modality == domain.ModalityImage {
		score.Structured = structuredMatchScore(content.Text, rules.Keywords)
	}
	score.Total = 0.3*score.Title + 0.4*score.Body + 0.3*score.Structured
	score.Obvious = isObviousMatch(collection.Name, content.Title)
	return score
}

// Matches applies the threshold, lowered to 0.3 when the obvious-match
// override fires.
func (s MatchScore) Matches(threshold float64) bool {
	if threshold <= 0 {
		threshold = 0.6
	}
	if s.Obvious {
		threshold = obviousMatchThreshold
	}
	return s.Total >= threshold
}

func titleMatchScore(title string, rules domain.QueryRules) float64 {
	if title == "" {
		return 0
	}
	lowered := strings.ToLower(title)

	score := 0.0
	matched := 0
	for _, keyword := range rules.Keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			matched++
		}
	}
	score += capAt(0.7, 0.2*float64(matched))

	if len(rules.TitlePatterns) > 0 {
		hits := 0
		for _, pattern := range rules.TitlePatterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				continue
			}
			if re.MatchString(title) {
				hits++
			}
		}
		score += float64(hits) / float64(len(rules.TitlePatterns)) * 0.3
	}
	return capAt(1.0, score)
}

// bodyMatchScore scans only the first 1000 characters.
func bodyMatchScore(text string, rules domain.QueryRules) float64 {
	if text == "" {
		return 0
	}
	runes := []rune(text)
	if len(runes) > 1000 {
		runes = runes[:1000]
	}
	sample := strings.ToLower(string(runes))

	score := 0.0
	matched := 0
	for _, keyword := range rules.Keywords {
		if strings.Contains(sample, strings.ToLower(keyword)) {
			matched++
		}
	}
	score += capAt(0.6, 0.15*float64(matched))

	if len(rules.ContentPatterns) > 0 {
		hits := 0
		for _, pattern := range rules.ContentPatterns {
			if strings.Contains(sample, strings.ToLower(pattern)) {
				hits++
			}
		}
		score += float64(hits) / float64(len(rules.ContentPatterns)) * 0.4
	}
	return capAt(1.0, score)
}

// ImageAnalysis holds the delimited sections a vision collaborator
// leaves inside an image content's text.
type ImageAnalysis struct {
	SceneDescription         string
	ActivityInference        string
	KeyElements              []string
	ClassificationSuggestion string
}

var sectionHeader = regexp.MustCompile(`【([^】]+)】`)

// ParseImageAnalysis splits 【场景描述】/【活动推理】/【关键元素】 style
// sections out of analyzed image text.
func ParseImageAnalysis(text string) ImageAnalysis {
	var analysis ImageAnalysis
	indexes := sectionHeader.FindAllStringSubmatchIndex(text, -1)
	for i, idx := range indexes {
		header := text[idx[2]:idx[3]]
		end := len(text)
		if i+1 < len(indexes) {
			end = indexes[i+1][0]
		}
		body := strings.TrimSpace(text[idx[1]:end])
		switch header {
		case "场景描述":
			analysis.SceneDescription = body
		case "活动推理", "活动推断":
			analysis.ActivityInference = body
		case "关键元素":
			for _, element := range strings.FieldsFunc(body, func(r rune) bool {
				return r == ',' || r == '，' || r == '\n'
			}) {
				if element = strings.TrimSpace(element); element != "" {
					analysis.KeyElements = append(analysis.KeyElements, element)
				}
			}
		case "分类建议":
			analysis.ClassificationSuggestion = body
		}
	}
	return analysis
}

// structuredMatchScore rewards keyword overlap with the parsed image
// sections: scene up to 0.8, activity up to 0.6, elements up to 0.4.
func structuredMatchScore(text string, keywords []string) float64 {
	analysis := ParseImageAnalysis(text)
	if analysis.SceneDescription == "" && analysis.ActivityInference == "" && len(analysis.KeyElements) == 0 {
		return 0
	}

	score := 0.0
	score += sectionOverlap(analysis.SceneDescription, keywords, 0.8)
	score += sectionOverlap(analysis.ActivityInference, keywords, 0.6)
	score += sectionOverlap(strings.Join(analysis.KeyElements, " "), keywords, 0.4)
	return capAt(1.0, score)
}

func sectionOverlap(section string, keywords []string, weight float64) float64 {
	if section == "" || len(keywords) == 0 {
		return 0
	}
	lowered := strings.ToLower(section)
	matched := 0
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return capAt(weight, weight*float64(matched)/3)
}

func isObviousMatch(collectionName, title string) bool {
	for nameFragment, triggers := range obviousMatches {
		if !strings.Contains(collectionName, nameFragment) {
			continue
		}
		for _, trigger := range triggers {
			if strings.Contains(title, trigger) {
				return true
			}
		}
	}
	return false
}

func capAt(limit, v float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
