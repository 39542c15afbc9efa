package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minTitleRunes drops navigation stubs: anything shorter is never a real
// announcement title.
const minTitleRunes = 8

var icpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`京icp备\d+号`),
	regexp.MustCompile(`icp备案号`),
	regexp.MustCompile(`京公网安备\d+号`),
	regexp.MustCompile(`公安备案号`),
	regexp.MustCompile(`网站备案`),
	regexp.MustCompile(`备案号`),
	regexp.MustCompile(`icp证`),
	regexp.MustCompile(`许可证号`),
}

var skipKeywords = []string{
	"版权所有", "copyright", "联系我们", "网站地图", "免责声明",
	"隐私政策", "使用条款", "技术支持", "网站维护",
	"更多", "查看更多", "点击查看", "详情",
	"返回", "首页", "上一页", "下一页",
	"分享", "打印", "收藏", "关闭", "确定", "取消",
}

var pureDateTitle = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}$`)

// ShouldSkipContent rejects link texts that cannot be policy titles:
// empty strings, ICP registration numbers, navigation/copyright
// boilerplate, pure dates, and titles under the minimum length.
func ShouldSkipContent(title string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, pat := range icpPatterns {
		if pat.MatchString(lower) {
			return true
		}
	}
	for _, kw := range skipKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	if utf8.RuneCountInString(trimmed) < minTitleRunes {
		return true
	}

	if pureDateTitle.MatchString(trimmed) {
		return true
	}

	return false
}
