package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"PolicyRadar/internal/analysis"
	"PolicyRadar/internal/domain"
	"PolicyRadar/internal/ports"
)

// AnalyzeReport tallies the terminal states of one analysis round.
type AnalyzeReport struct {
	Analyzed   int
	Succeeded  int
	NoIndustry int
	Failed     int
	Persisted  int
}

// AnalyzerDeps wires the driven adapters into the analysis orchestrator.
type AnalyzerDeps struct {
	Events  ports.EventStore
	Results ports.AnalysisStore
	Fetcher ports.ContentFetcher
	Client  ports.CompletionClient
	Logger  *slog.Logger
}

// Analyzer runs LLM classification over stored policy records, in a
// sequential batch mode and a bounded concurrent mode.
type Analyzer struct {
	events  ports.EventStore
	results ports.AnalysisStore
	fetcher ports.ContentFetcher
	client  ports.CompletionClient
	logger  *slog.Logger

	batchSize     int
	batchDelay    time.Duration
	maxConcurrent int
}

// NewAnalyzer constructs the orchestrator with batch tuning.
func NewAnalyzer(deps AnalyzerDeps, batchSize int, batchDelay time.Duration, maxConcurrent int) *Analyzer {
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Analyzer{
		events:        deps.Events,
		results:       deps.Results,
		fetcher:       deps.Fetcher,
		client:        deps.Client,
		logger:        deps.Logger,
		batchSize:     batchSize,
		batchDelay:    batchDelay,
		maxConcurrent: maxConcurrent,
	}
}

// AnalyzeBatch classifies up to limit unanalyzed records sequentially,
// persisting each result as it completes and pausing batchDelay between
// records. A limit of zero uses the configured batch size.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, limit int) (AnalyzeReport, error) {
	records, err := a.events.UnanalyzedRecords(ctx, a.effectiveLimit(limit))
	if err != nil {
		return AnalyzeReport{}, fmt.Errorf("load unanalyzed records: %w", err)
	}
	a.logger.Info("starting batch analysis", "records", len(records))

	var report AnalyzeReport
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := a.analyzeOne(ctx, rec, "")
		a.persist(ctx, res, &report)
		report.tally(res)

		if a.batchDelay > 0 && i < len(records)-1 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(a.batchDelay):
			}
		}
	}

	a.logReport("batch analysis done", report)
	return report, nil
}

// AnalyzeBatchAsync classifies up to limit unanalyzed records using a
// worker pool of at most the configured concurrency. Results are collected
// and persisted together after the workers drain; cancelling the context
// stops handing out new records while in-flight ones finish.
func (a *Analyzer) AnalyzeBatchAsync(ctx context.Context, limit, workers int) (AnalyzeReport, error) {
	records, err := a.events.UnanalyzedRecords(ctx, a.effectiveLimit(limit))
	if err != nil {
		return AnalyzeReport{}, fmt.Errorf("load unanalyzed records: %w", err)
	}
	if workers <= 0 || workers > a.maxConcurrent {
		workers = a.maxConcurrent
	}
	if workers > len(records) {
		workers = len(records)
	}
	a.logger.Info("starting async analysis", "records", len(records), "workers", workers)

	// Cancellation stops handing out new records; records already admitted
	// run to completion on a detached context (the per-call timeout inside
	// the completion client still applies) and their results are persisted.
	callCtx := context.WithoutCancel(ctx)

	jobs := make(chan domain.PolicyRecord)
	var mu sync.Mutex
	var collected []domain.ClassificationResult

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				res := a.analyzeOne(callCtx, rec, "")
				mu.Lock()
				collected = append(collected, res)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, rec := range records {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- rec:
		}
	}
	close(jobs)
	wg.Wait()

	// Persist after the round so worker goroutines never contend on the
	// single sqlite writer. The detached context keeps completed analyses
	// from being lost when the batch deadline has already passed.
	var report AnalyzeReport
	for _, res := range collected {
		a.persist(callCtx, res, &report)
		report.tally(res)
	}

	a.logReport("async analysis done", report)
	return report, ctx.Err()
}

// ReanalyzeDegraded re-runs classification for records whose previous
// analysis failed or found no industries. Cached page text from the prior
// attempt is reused so the source site is not fetched again.
func (a *Analyzer) ReanalyzeDegraded(ctx context.Context, limit int) (AnalyzeReport, error) {
	records, err := a.events.DegradedRecords(ctx, a.effectiveLimit(limit))
	if err != nil {
		return AnalyzeReport{}, fmt.Errorf("load degraded records: %w", err)
	}
	a.logger.Info("starting reanalysis", "records", len(records))

	var report AnalyzeReport
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		cached := ""
		if prior, err := a.results.GetClassification(ctx, rec.ID); err != nil {
			a.logger.Warn("prior result unavailable", "policy_id", rec.ID, "error", err)
		} else if prior != nil && analysis.HasRichContent(prior.FullContent) {
			cached = prior.FullContent
		}

		res := a.analyzeOne(ctx, rec, cached)
		a.persist(ctx, res, &report)
		report.tally(res)

		if a.batchDelay > 0 && i < len(records)-1 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(a.batchDelay):
			}
		}
	}

	a.logReport("reanalysis done", report)
	return report, nil
}

// analyzeOne resolves the record's text, prompts the model and maps the
// outcome onto a ClassificationResult. It never returns an error: failures
// become a failed result with the sentinel industry marker so the record
// does not stay in the unanalyzed pool forever.
func (a *Analyzer) analyzeOne(ctx context.Context, rec domain.PolicyRecord, cachedContent string) domain.ClassificationResult {
	content := cachedContent
	if content == "" {
		content = a.resolveContent(ctx, rec)
	}
	quality := analysis.ClassifyQuality(content)

	prompt := analysis.BuildPrompt(analysis.PromptInput{
		Title:     rec.Title,
		Content:   content,
		EventType: rec.EventType,
		SourceURL: rec.SourceURL,
	})

	raw, err := a.client.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn("completion failed", "policy_id", rec.ID, "title", rec.Title, "error", err)
		return failedResult(rec.ID, quality, content, fmt.Sprintf("分析失败: %v", err))
	}

	parsed := analysis.ParseResponse(raw)
	if !parsed.Ok {
		a.logger.Warn("model output unparseable", "policy_id", rec.ID, "reason", parsed.Reason)
		return failedResult(rec.ID, quality, content, "分析失败: "+parsed.Reason)
	}

	industries := parsed.Industries
	if len(industries) == 0 {
		industries = []string{domain.SentinelNoIndustry}
	}

	return domain.ClassificationResult{
		PolicyID:        rec.ID,
		Industries:      industries,
		AnalysisSummary: parsed.AnalysisSummary,
		ConfidenceScore: parsed.ConfidenceScore,
		ContentQuality:  quality,
		FullContent:     content,
		Status:          domain.StatusSuccess,
	}
}

// resolveContent prefers the full page text over whatever snippet the list
// scan captured. Fetch failures degrade to the stored snippet, which may
// be empty; the prompt builder handles that by switching templates.
func (a *Analyzer) resolveContent(ctx context.Context, rec domain.PolicyRecord) string {
	if analysis.HasRichContent(rec.Content) {
		return rec.Content
	}
	if a.fetcher == nil || rec.SourceURL == "" {
		return rec.Content
	}

	text, err := a.fetcher.FetchText(ctx, rec.SourceURL)
	if err != nil {
		a.logger.Warn("content fetch failed, analyzing from title",
			"policy_id", rec.ID, "url", rec.SourceURL, "error", err)
		return rec.Content
	}
	if text == "" {
		return rec.Content
	}
	return text
}

func (a *Analyzer) persist(ctx context.Context, res domain.ClassificationResult, report *AnalyzeReport) {
	if err := a.results.UpsertResult(ctx, res); err != nil {
		a.logger.Error("persist analysis failed", "policy_id", res.PolicyID, "error", err)
		return
	}
	report.Persisted++
}

func (a *Analyzer) effectiveLimit(limit int) int {
	if limit > 0 {
		return limit
	}
	return a.batchSize
}

func (a *Analyzer) logReport(msg string, r AnalyzeReport) {
	a.logger.Info(msg,
		"analyzed", r.Analyzed, "succeeded", r.Succeeded,
		"no_industry", r.NoIndustry, "failed", r.Failed, "persisted", r.Persisted)
}

func failedResult(policyID int64, quality domain.ContentQuality, content, reason string) domain.ClassificationResult {
	return domain.ClassificationResult{
		PolicyID:        policyID,
		Industries:      []string{domain.SentinelFailed},
		AnalysisSummary: reason,
		ConfidenceScore: 0,
		ContentQuality:  quality,
		FullContent:     content,
		Status:          domain.StatusFailed,
	}
}

func (r *AnalyzeReport) tally(res domain.ClassificationResult) {
	r.Analyzed++
	switch res.Outcome() {
	case domain.OutcomeSuccess:
		r.Succeeded++
	case domain.OutcomeNoIndustry:
		r.NoIndustry++
	case domain.OutcomeFailed:
		r.Failed++
	}
}
