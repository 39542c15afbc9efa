package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// richContentThreshold selects the rich template: anything longer than
	// this many characters of usable content is worth showing to the model.
	richContentThreshold = 50
	// maxPromptContent caps how many characters of page text go into the
	// prompt.
	maxPromptContent = 3000

	truncationMarker = "...(内容过长已截断)"
)

// PromptInput is everything the builder may weave into a prompt.
type PromptInput struct {
	Title     string
	Content   string // resolved text, possibly fetched from SourceURL
	EventType string
	SourceURL string
}

// BuildPrompt renders the analysis prompt for one policy. Two templates
// exist: the rich one shows the policy text and anchors confidence near
// 0.8, the sparse one works from the title alone and instructs the model
// to lower confidence because of the limited information.
func BuildPrompt(in PromptInput) string {
	if HasRichContent(in.Content) {
		return buildRichPrompt(in)
	}
	return buildSparsePrompt(in)
}

// HasRichContent reports whether BuildPrompt would use the rich template.
func HasRichContent(content string) bool {
	return utf8.RuneCountInString(content) > richContentThreshold
}

func buildRichPrompt(in PromptInput) string {
	content := in.Content
	marker := ""
	if utf8.RuneCountInString(content) > maxPromptContent {
		content = truncateRunes(content, maxPromptContent)
		marker = truncationMarker
	}

	var b strings.Builder
	b.WriteString("请分析以下政策对中国股市的影响：\n\n")
	fmt.Fprintf(&b, "标题：%s\n", in.Title)
	fmt.Fprintf(&b, "事件类型：%s\n\n", orUnknown(in.EventType))
	fmt.Fprintf(&b, "完整内容：\n%s%s\n", content, marker)
	b.WriteString(analysisRequest("基于完整政策内容，详细说明政策的主要影响点和逻辑", "", "0.8"))
	return b.String()
}

func buildSparsePrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("请分析以下政策对中国股市的影响：\n\n")
	fmt.Fprintf(&b, "标题：%s\n", in.Title)
	fmt.Fprintf(&b, "内容：%s\n", orDefault(in.Content, "无详细内容"))
	fmt.Fprintf(&b, "事件类型：%s\n", orUnknown(in.EventType))
	fmt.Fprintf(&b, "原文链接：%s\n\n", orDefault(in.SourceURL, "无"))
	b.WriteString("注意：由于缺乏详细政策内容，请基于标题进行初步分析，并在置信度评分中体现这一限制。\n")
	b.WriteString(analysisRequest("简要说明政策的主要影响点和逻辑", "，由于缺乏详细内容应适当降低", "0.5"))
	return b.String()
}

func analysisRequest(summaryInstruction, confidenceNote, defaultConfidence string) string {
	return fmt.Sprintf(`
请从以下几个方面进行分析：
1. 相关行业：列出可能受到影响的主要行业（最多5个）
2. 影响程度：评估对股市的整体影响程度（正面/负面/中性）
3. 分析摘要：%s
4. 置信度：对分析结果的置信度评分（0-1之间%s）

请以JSON格式返回结果：
{
    "industries": ["行业1", "行业2", ...],
    "impact_type": "正面/负面/中性",
    "analysis_summary": "分析摘要",
    "confidence_score": %s
}
`, summaryInstruction, confidenceNote, defaultConfidence)
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	count := 0
	for pos := range s {
		if count == n {
			return s[:pos]
		}
		count++
	}
	return s
}

func orUnknown(s string) string {
	return orDefault(s, "未知")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
