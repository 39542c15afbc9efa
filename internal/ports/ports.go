package ports

import (
	"context"
	"time"

	"PolicyRadar/internal/domain"
)

// PolicySource pulls fresh policy records from upstream providers.
type PolicySource interface {
	FetchAll(ctx context.Context) ([]domain.PolicyRecord, error)
}

// EventStore persists raw policy records and answers dedup probes.
type EventStore interface {
	Exists(ctx context.Context, title, sourceURL string) (bool, error)
	SaveRecord(ctx context.Context, rec domain.PolicyRecord) (int64, error)
	UnanalyzedRecords(ctx context.Context, limit int) ([]domain.PolicyRecord, error)
	DegradedRecords(ctx context.Context, limit int) ([]domain.PolicyRecord, error)
}

// AnalysisStore persists classification results, at most one per policy id.
type AnalysisStore interface {
	UpsertResult(ctx context.Context, res domain.ClassificationResult) error
	GetClassification(ctx context.Context, policyID int64) (*domain.ClassificationResult, error)
	FindByIndustryKeyword(ctx context.Context, keyword string) ([]domain.ClassificationResult, error)
	GetStatistics(ctx context.Context) (domain.AnalysisStatistics, error)
}

// FetchLogStore keeps the per-source last-attempt ledger that throttles
// repeated scraping.
type FetchLogStore interface {
	GetFetchLog(ctx context.Context, sourceName string) (*domain.FetchLogEntry, error)
	RecordFetchStatus(ctx context.Context, sourceName string, status domain.FetchStatus, records int, errMsg string) error
}

// CompletionClient performs one LLM completion call. Implementations own
// rate limiting and retry; an error return means retries were exhausted or
// the request was rejected permanently.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ContentFetcher downloads and extracts the readable text of a policy page.
type ContentFetcher interface {
	FetchText(ctx context.Context, sourceURL string) (string, error)
}

// Notifier publishes run digests to an out-of-band channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when the daily pipeline executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
