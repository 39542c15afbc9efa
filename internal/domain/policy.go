package domain

import "time"

// PolicyRecord is one scraped announcement candidate for classification.
// Records are created once at ingestion and never mutated afterwards.
type PolicyRecord struct {
	ID          int64
	Date        string // calendar date, YYYY-MM-DD, best-effort extracted
	Title       string
	EventType   string
	Content     string
	SourceURL   string
	Department  string
	PolicyLevel string
	ImpactLevel string
	ContentType string
	CreatedAt   time.Time
}

// DedupKey identifies a record for ingestion-time deduplication.
func (p PolicyRecord) DedupKey() (title, sourceURL string) {
	return p.Title, p.SourceURL
}

// ContentQuality is the coarse bucket describing how much source text was
// available when prompting the model.
type ContentQuality string

const (
	QualityFull      ContentQuality = "full"
	QualityPartial   ContentQuality = "partial"
	QualityTitleOnly ContentQuality = "title_only"
)

// AnalysisStatus marks whether the pipeline itself succeeded for a record.
// A successful analysis that found no industries is still a success.
type AnalysisStatus string

const (
	StatusSuccess AnalysisStatus = "success"
	StatusFailed  AnalysisStatus = "failed"
)

// AnalysisOutcome distinguishes the three terminal states of one analysis.
type AnalysisOutcome int

const (
	// OutcomeSuccess: the model returned at least one industry.
	OutcomeSuccess AnalysisOutcome = iota
	// OutcomeNoIndustry: valid model output, empty industry list.
	OutcomeNoIndustry
	// OutcomeFailed: the call or the parse failed after retries.
	OutcomeFailed
)

// Sentinel industry markers, stored instead of an empty list so that
// "analyzed, nothing found" and "analysis failed" stay distinguishable
// from "not yet analyzed".
const (
	SentinelFailed     = "分析失败"
	SentinelNoIndustry = "分析后无相关行业"
)

// ClassificationResult is the persisted outcome of analyzing one record.
// At most one result exists per policy; reanalysis replaces it.
type ClassificationResult struct {
	PolicyID        int64
	Industries      []string
	AnalysisSummary string
	ConfidenceScore float64
	ContentQuality  ContentQuality
	// FullContent caches the exact text shown to the model so a later
	// reanalysis pass can skip re-fetching the source page.
	FullContent string
	Status      AnalysisStatus
	CreatedAt   time.Time
}

// Outcome derives the terminal state from the persisted fields.
func (r ClassificationResult) Outcome() AnalysisOutcome {
	if r.Status == StatusFailed {
		return OutcomeFailed
	}
	for _, ind := range r.Industries {
		if ind == SentinelNoIndustry {
			return OutcomeNoIndustry
		}
	}
	if len(r.Industries) == 0 {
		return OutcomeNoIndustry
	}
	return OutcomeSuccess
}

// FetchStatus records how the last fetch attempt for a source ended.
type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// FetchLogEntry is the per-source last-attempt record used to throttle
// repeated scraping. One row per source, replaced on every attempt.
type FetchLogEntry struct {
	SourceName     string
	LastFetchTime  time.Time
	Status         FetchStatus
	ErrorMessage   string
	RecordsFetched int
	UpdatedAt      time.Time
}

// AnalysisStatistics partitions the stored results for reporting.
type AnalysisStatistics struct {
	TotalPolicies      int
	AnalyzedPolicies   int
	UnanalyzedPolicies int
	SuccessfulAnalysis int
	FailedAnalysis     int
	NoIndustryAnalysis int
	NeedReanalysis     int
	AnalysisRate       float64 // percent of records analyzed
	SuccessRate        float64 // percent of analyzed records with industries
}
