package usecase

import (
	"strings"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

// QueryIntent adjusts semantic thresholds and modality expectations
// per query. Expected is empty when the query names no file type.
type QueryIntent struct {
	Expected  domain.Modality
	Technical bool
}

var imageIntentTerms = []string{
	"照片", "图片", "图像", "拍照", "摄影", "风景", "山顶", "海边", "建筑", "人像",
}

var documentIntentTerms = []string{
	"报告", "文档", "论文", "研究", "分析", "白皮书",
}

var technicalIntentTerms = []string{
	"机器学习", "人工智能", "深度学习", "算法", "技术", "编程", "开发",
}

// DetectIntent classifies a query by its vocabulary. Image-seeking
// queries raise the similarity bar because vision-derived text embeds
// noisily; technical queries raise it slightly for precision. Queries
// naming a file type also narrow the expected modality.
func DetectIntent(query string) QueryIntent {
	lowered := strings.ToLower(query)
	var intent QueryIntent
	switch {
	case containsAnyTerm(lowered, imageIntentTerms):
		intent.Expected = domain.ModalityImage
	case containsAnyTerm(lowered, documentIntentTerms):
		intent.Expected = domain.ModalityPDF
	}
	intent.Technical = containsAnyTerm(lowered, technicalIntentTerms)
	return intent
}

func containsAnyTerm(query string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(query, term) {
			return true
		}
	}
	return false
}

// MinSimilarity is the floor a semantic candidate must clear.
func (i QueryIntent) MinSimilarity() float64 {
	switch {
	case i.Expected == domain.ModalityImage:
		return 0.35
	case i.Technical:
		return 0.28
	default:
		return 0.25
	}
}

// KeepCrossModality decides whether a semantic candidate survives the
// modality expectation. Queries with no expectation keep everything;
// a candidate of another modality needs enough similarity headroom.
func (i QueryIntent) KeepCrossModality(modality domain.Modality, similarity float64) bool {
	if i.Expected == "" || modality == i.Expected {
		return true
	}
	if i.Expected == domain.ModalityImage {
		// Text answering an image-seeking query must be clearly close.
		return similarity > 0.45
	}
	return similarity > 0.40
}
