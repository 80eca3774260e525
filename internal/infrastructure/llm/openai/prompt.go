package openai

import (
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

func classificationSystemPrompt() string {
	var taxonomy strings.Builder
	for _, category := range domain.SystemTaxonomy {
		taxonomy.WriteString(fmt.Sprintf("- %s: %s\n", category.Name, category.Description))
	}

	return fmt.Sprintf(`你是一个内容分类助手。请将内容归入以下固定分类之一：
%s
只返回严格的 JSON 对象，不要使用 markdown，不要输出多余的键：
{
  "primary_category": "分类名称",
  "confidence": 0.0,
  "secondary_categories": [{"category": "分类名称", "confidence": 0.0}],
  "reasoning": "一句话说明分类依据"
}
primary_category 必须是上面列出的分类名称之一。`, taxonomy.String())
}

func classificationUserPrompt(title, excerpt string) string {
	return fmt.Sprintf("标题: %s\n\n内容:\n%s", title, excerpt)
}
