package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseResult is the tagged outcome of parsing model output. Exactly one
// of Ok/Failed applies; callers switch on Ok rather than probing maps.
type ParseResult struct {
	Ok     bool
	Reason string // set when !Ok

	Industries      []string
	ImpactType      string
	AnalysisSummary string
	ConfidenceScore float64
}

// rawAnalysis mirrors the JSON object the prompt demands. Loosely typed
// fields absorb the model's habit of returning scalars where lists are
// expected and strings where numbers are expected.
type rawAnalysis struct {
	Industries      json.RawMessage `json:"industries"`
	ImpactType      string          `json:"impact_type"`
	AnalysisSummary *string         `json:"analysis_summary"`
	ConfidenceScore json.RawMessage `json:"confidence_score"`
}

// ParseResponse extracts and validates the JSON object embedded in free-form
// model output. The model often wraps the object in prose, so the first '{'
// is located and a brace-depth scan selects the balanced object; unbalanced
// braces fail the parse rather than guessing a truncation point.
func ParseResponse(text string) ParseResult {
	jsonStr, ok := ExtractJSONObject(text)
	if !ok {
		return parseFailed("no balanced JSON object in model output")
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return parseFailed(fmt.Sprintf("invalid JSON: %v", err))
	}

	if raw.Industries == nil {
		return parseFailed("missing required field industries")
	}
	if raw.AnalysisSummary == nil {
		return parseFailed("missing required field analysis_summary")
	}
	if raw.ConfidenceScore == nil {
		return parseFailed("missing required field confidence_score")
	}

	industries, err := coerceIndustries(raw.Industries)
	if err != nil {
		return parseFailed(err.Error())
	}

	return ParseResult{
		Ok:              true,
		Industries:      industries,
		ImpactType:      raw.ImpactType,
		AnalysisSummary: *raw.AnalysisSummary,
		ConfidenceScore: coerceConfidence(raw.ConfidenceScore),
	}
}

// ExtractJSONObject returns the first balanced {...} substring of text.
// The scan tracks brace depth so nested objects resolve correctly, unlike
// pairing the first '{' with the last '}'.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func coerceIndustries(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	// A scalar answer becomes a single-element list.
	var scalar any
	if err := json.Unmarshal(raw, &scalar); err != nil {
		return nil, fmt.Errorf("industries is neither list nor scalar: %v", err)
	}
	switch v := scalar.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	default:
		return []string{fmt.Sprint(v)}, nil
	}
}

func coerceConfidence(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		// Models sometimes quote the number.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0.5
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0.5
		}
		f = parsed
	}
	return clamp01(f)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func parseFailed(reason string) ParseResult {
	return ParseResult{Ok: false, Reason: reason}
}
