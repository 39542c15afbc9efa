package parser

import "strings"

// Title heuristics populating the descriptive PolicyRecord fields at
// extraction time. These are coarse keyword matches; the LLM pass is what
// produces the real classification later.

var eventTypeRules = []struct {
	keywords []string
	label    string
}{
	{[]string{"货币", "央行", "利率", "准备金", "流动性"}, "货币政策"},
	{[]string{"财政", "税收", "减税", "财政部", "预算"}, "财政政策"},
	{[]string{"房地产", "楼市", "住房", "房价"}, "房地产政策"},
	{[]string{"股市", "证券", "上市", "IPO", "证监会"}, "证券政策"},
	{[]string{"经济", "发展", "改革", "开放"}, "经济政策"},
	{[]string{"环保", "环境", "碳", "绿色"}, "环保政策"},
	{[]string{"科技", "创新", "研发", "技术"}, "科技政策"},
}

// ClassifyEventType buckets a policy by title keywords.
func ClassifyEventType(title string) string {
	for _, rule := range eventTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(title, kw) {
				return rule.label
			}
		}
	}
	return "其他政策"
}

var departmentRules = []struct {
	name     string
	keywords []string
}{
	{"国务院", []string{"国务院", "guowuyuan"}},
	{"央行", []string{"央行", "人民银行", "pbc"}},
	{"财政部", []string{"财政部", "mof"}},
	{"发改委", []string{"发改委", "ndrc"}},
	{"证监会", []string{"证监会", "csrc"}},
	{"银保监会", []string{"银保监会", "cbirc"}},
	{"商务部", []string{"商务部", "mofcom"}},
}

// ExtractDepartment guesses the issuing department from title or URL.
func ExtractDepartment(title, url string) string {
	urlLower := strings.ToLower(url)
	for _, rule := range departmentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(title, kw) || strings.Contains(urlLower, kw) {
				return rule.name
			}
		}
	}
	return "未知部门"
}

// DeterminePolicyLevel grades national vs ministry vs local scope.
func DeterminePolicyLevel(title string) string {
	if containsAny(title, "国务院", "中央", "全国") {
		return "国家级"
	}
	if containsAny(title, "省", "市", "地方") {
		return "地方级"
	}
	return "部委级"
}

// AssessImpactLevel grades the expected market impact from title wording.
func AssessImpactLevel(title string) string {
	if containsAny(title, "重大", "重要", "关键", "核心", "全面", "深化", "改革") {
		return "高"
	}
	if containsAny(title, "推进", "加强", "完善", "优化", "提升") {
		return "中"
	}
	return "低"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
