package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	looseDateExpr  = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	strictDateExpr = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// findDate pulls the first date-shaped substring out of text and
// normalizes it to YYYY-MM-DD. Returns "" when no date is present.
func findDate(text string) string {
	m := looseDateExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}
	return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
}

// findStrictDate matches only fully padded YYYY-MM-DD, the format the
// government sites render next to list entries.
func findStrictDate(text string) string {
	return strictDateExpr.FindString(text)
}

// matchesMonth reports whether date (YYYY-MM-DD) falls in targetMonth
// (YYYY-MM). An empty targetMonth matches everything.
func matchesMonth(date, targetMonth string) bool {
	if targetMonth == "" {
		return true
	}
	return strings.HasPrefix(date, targetMonth)
}
