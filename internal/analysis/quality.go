package analysis

import (
	"unicode/utf8"

	"PolicyRadar/internal/domain"
)

const (
	fullContentThreshold    = 500
	partialContentThreshold = 100
)

// ClassifyQuality buckets available text into coarse content-quality tiers.
// Boundary values map to the lower tier: exactly 500 chars is partial,
// exactly 100 is title_only. Length is counted in characters, not bytes;
// most of this text is CJK where the two differ by a factor of three.
func ClassifyQuality(text string) domain.ContentQuality {
	switch n := utf8.RuneCountInString(text); {
	case n > fullContentThreshold:
		return domain.QualityFull
	case n > partialContentThreshold:
		return domain.QualityPartial
	default:
		return domain.QualityTitleOnly
	}
}
