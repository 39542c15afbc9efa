package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PolicyRadar/internal/domain"
	"PolicyRadar/internal/logging"
)

type memAnalysisStore struct {
	mu      sync.Mutex
	results map[int64]domain.ClassificationResult
}

func newMemAnalysisStore() *memAnalysisStore {
	return &memAnalysisStore{results: map[int64]domain.ClassificationResult{}}
}

func (m *memAnalysisStore) UpsertResult(ctx context.Context, res domain.ClassificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.PolicyID] = res
	return nil
}

func (m *memAnalysisStore) GetClassification(ctx context.Context, policyID int64) (*domain.ClassificationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.results[policyID]; ok {
		return &res, nil
	}
	return nil, nil
}

func (m *memAnalysisStore) FindByIndustryKeyword(ctx context.Context, keyword string) ([]domain.ClassificationResult, error) {
	return nil, nil
}

func (m *memAnalysisStore) GetStatistics(ctx context.Context) (domain.AnalysisStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.AnalysisStatistics{AnalyzedPolicies: len(m.results)}, nil
}

type fakeFetcher struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchText(ctx context.Context, sourceURL string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type fakeClient struct {
	respond func(prompt string) (string, error)
	calls   atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
}

func (c *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	cur := c.active.Add(1)
	for {
		peak := c.peak.Load()
		if cur <= peak || c.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer c.active.Add(-1)
	return c.respond(prompt)
}

const goodResponse = `{"industries": ["银行", "保险"], "impact_type": "正面", "analysis_summary": "利好金融", "confidence_score": 0.85}`

func newTestAnalyzer(events *memEventStore, results *memAnalysisStore, fetcher *fakeFetcher, client *fakeClient) *Analyzer {
	return NewAnalyzer(AnalyzerDeps{
		Events:  events,
		Results: results,
		Fetcher: fetcher,
		Client:  client,
		Logger:  logging.New("error"),
	}, 20, 0, 5)
}

func TestAnalyzeBatchFullFlow(t *testing.T) {
	events := newMemEventStore()
	id, _ := events.SaveRecord(context.Background(), policyRec("关于深化改革的政策"))

	results := newMemAnalysisStore()
	fetcher := &fakeFetcher{text: strings.Repeat("政策全文内容。", 80)} // well over the 500-char full threshold
	client := &fakeClient{respond: func(string) (string, error) { return goodResponse, nil }}

	report, err := newTestAnalyzer(events, results, fetcher, client).AnalyzeBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if report.Analyzed != 1 || report.Succeeded != 1 || report.Persisted != 1 {
		t.Errorf("report = %+v", report)
	}

	res := results.results[id]
	if res.Status != domain.StatusSuccess {
		t.Errorf("status = %s", res.Status)
	}
	if len(res.Industries) != 2 {
		t.Errorf("industries = %v", res.Industries)
	}
	if res.ContentQuality != domain.QualityFull {
		t.Errorf("quality = %s, want full for fetched article text", res.ContentQuality)
	}
	if res.FullContent == "" {
		t.Error("analyzed text should be cached for reanalysis")
	}
	if res.ConfidenceScore != 0.85 {
		t.Errorf("confidence = %v", res.ConfidenceScore)
	}
}

func TestAnalyzeBatchLLMFailure(t *testing.T) {
	events := newMemEventStore()
	id, _ := events.SaveRecord(context.Background(), policyRec("某条政策"))

	results := newMemAnalysisStore()
	fetcher := &fakeFetcher{text: strings.Repeat("内容", 300)}
	client := &fakeClient{respond: func(string) (string, error) {
		return "", errors.New("after 3 attempts: 503")
	}}

	report, err := newTestAnalyzer(events, results, fetcher, client).AnalyzeBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}

	res := results.results[id]
	if res.Status != domain.StatusFailed {
		t.Errorf("status = %s", res.Status)
	}
	if len(res.Industries) != 1 || res.Industries[0] != domain.SentinelFailed {
		t.Errorf("industries = %v, want the failure marker", res.Industries)
	}
	if res.Outcome() != domain.OutcomeFailed {
		t.Errorf("outcome = %v", res.Outcome())
	}
}

func TestAnalyzeBatchNoIndustry(t *testing.T) {
	events := newMemEventStore()
	id, _ := events.SaveRecord(context.Background(), policyRec("与股市无关的政策"))

	results := newMemAnalysisStore()
	client := &fakeClient{respond: func(string) (string, error) {
		return `{"industries": [], "analysis_summary": "与股市无关", "confidence_score": 0.9}`, nil
	}}

	report, err := newTestAnalyzer(events, results, &fakeFetcher{}, client).AnalyzeBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if report.NoIndustry != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	res := results.results[id]
	if res.Status != domain.StatusSuccess {
		t.Errorf("status = %s, no-industry is still a successful analysis", res.Status)
	}
	if res.Outcome() != domain.OutcomeNoIndustry {
		t.Errorf("outcome = %v", res.Outcome())
	}
}

func TestAnalyzeBatchUnparseableOutput(t *testing.T) {
	events := newMemEventStore()
	events.SaveRecord(context.Background(), policyRec("某条政策"))

	results := newMemAnalysisStore()
	client := &fakeClient{respond: func(string) (string, error) {
		return "模型输出了一段没有JSON的文字", nil
	}}

	report, err := newTestAnalyzer(events, results, &fakeFetcher{}, client).AnalyzeBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestAnalyzeDegradesToTitleOnFetchFailure(t *testing.T) {
	events := newMemEventStore()
	id, _ := events.SaveRecord(context.Background(), policyRec("抓不到正文的政策"))

	results := newMemAnalysisStore()
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	client := &fakeClient{respond: func(prompt string) (string, error) {
		if !strings.Contains(prompt, "缺乏详细政策内容") {
			t.Error("prompt should use the sparse template when no content exists")
		}
		return goodResponse, nil
	}}

	if _, err := newTestAnalyzer(events, results, fetcher, client).AnalyzeBatch(context.Background(), 0); err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}

	res := results.results[id]
	if res.ContentQuality != domain.QualityTitleOnly {
		t.Errorf("quality = %s, want title_only after fetch failure", res.ContentQuality)
	}
	if res.Status != domain.StatusSuccess {
		t.Errorf("status = %s, fetch failure alone must not fail the analysis", res.Status)
	}
}

func TestAnalyzeBatchAsyncBoundsConcurrency(t *testing.T) {
	events := newMemEventStore()
	for i := 0; i < 12; i++ {
		events.SaveRecord(context.Background(), policyRec("政策"+strings.Repeat("十", i+1)))
	}

	results := newMemAnalysisStore()
	client := &fakeClient{respond: func(string) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return goodResponse, nil
	}}

	report, err := newTestAnalyzer(events, results, &fakeFetcher{}, client).AnalyzeBatchAsync(context.Background(), 12, 3)
	if err != nil {
		t.Fatalf("AnalyzeBatchAsync: %v", err)
	}
	if report.Analyzed != 12 || report.Persisted != 12 {
		t.Errorf("report = %+v", report)
	}
	if peak := client.peak.Load(); peak > 3 {
		t.Errorf("observed %d concurrent calls, want at most 3", peak)
	}
	if len(results.results) != 12 {
		t.Errorf("persisted %d results", len(results.results))
	}
}

// slowClient honors caller cancellation, like the real completion client.
type slowClient struct {
	delay time.Duration
	calls atomic.Int32
}

func (c *slowClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(c.delay):
		return goodResponse, nil
	}
}

// strictStore rejects writes on an expired context, like the sqlite store.
type strictStore struct {
	*memAnalysisStore
}

func (s *strictStore) UpsertResult(ctx context.Context, res domain.ClassificationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memAnalysisStore.UpsertResult(ctx, res)
}

func TestAnalyzeBatchAsyncDeadlineLetsInFlightFinish(t *testing.T) {
	events := newMemEventStore()
	for i := 0; i < 3; i++ {
		events.SaveRecord(context.Background(), policyRec("政策"+strings.Repeat("十", i+1)))
	}

	results := &strictStore{memAnalysisStore: newMemAnalysisStore()}
	client := &slowClient{delay: 80 * time.Millisecond}
	analyzer := NewAnalyzer(AnalyzerDeps{
		Events:  events,
		Results: results,
		Fetcher: &fakeFetcher{},
		Client:  client,
		Logger:  logging.New("error"),
	}, 20, 0, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	report, err := analyzer.AnalyzeBatchAsync(ctx, 3, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the batch deadline", err)
	}

	// The admitted record finishes and is stored; the rest are abandoned.
	if got := client.calls.Load(); got != 1 {
		t.Errorf("completion calls = %d, want 1", got)
	}
	if report.Analyzed != 1 || report.Succeeded != 1 || report.Failed != 0 {
		t.Errorf("report = %+v, want the in-flight call to complete", report)
	}
	if report.Persisted != 1 || len(results.results) != 1 {
		t.Errorf("persisted = %d (stored %d), want the finished result saved",
			report.Persisted, len(results.results))
	}
}

func TestReanalyzeReusesCachedContent(t *testing.T) {
	events := newMemEventStore()
	id, _ := events.SaveRecord(context.Background(), policyRec("需要重新分析的政策"))

	results := newMemAnalysisStore()
	cached := strings.Repeat("缓存的原文内容。", 40)
	results.UpsertResult(context.Background(), domain.ClassificationResult{
		PolicyID:    id,
		Industries:  []string{domain.SentinelFailed},
		FullContent: cached,
		Status:      domain.StatusFailed,
	})

	fetcher := &fakeFetcher{text: "不应该被用到"}
	client := &fakeClient{respond: func(prompt string) (string, error) {
		if !strings.Contains(prompt, "缓存的原文内容") {
			t.Error("reanalysis should prompt with the cached text")
		}
		return goodResponse, nil
	}}

	report, err := newTestAnalyzer(events, results, fetcher, client).ReanalyzeDegraded(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReanalyzeDegraded: %v", err)
	}
	if report.Succeeded != 1 {
		t.Errorf("report = %+v", report)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("source page must not be fetched again when cached text exists")
	}

	res := results.results[id]
	if res.Status != domain.StatusSuccess {
		t.Errorf("status = %s, want the replacement to succeed", res.Status)
	}
}
