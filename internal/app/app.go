package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PolicyRadar/internal/config"
	"PolicyRadar/internal/infrastructure/content"
	"PolicyRadar/internal/infrastructure/parser"
	"PolicyRadar/internal/infrastructure/scheduler"
	"PolicyRadar/internal/infrastructure/storage"
	"PolicyRadar/internal/infrastructure/telegram"
	"PolicyRadar/internal/llm"
	"PolicyRadar/internal/logging"
	"PolicyRadar/internal/ports"
	"PolicyRadar/internal/scanner"
	"PolicyRadar/internal/usecase"
)

// Application wires config to adapters, use cases and lifecycle.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	store    *storage.Store
	ingestor *usecase.Ingestor
	analyzer *usecase.Analyzer
	pipeline *usecase.Pipeline
	sched    *usecase.Scheduler
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pageClient := &http.Client{Timeout: cfg.Fetcher.PageTimeout}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewListPageScanner(pageClient, cfg.Fetcher.UserAgent,
		cfg.Fetcher.PageDelay, cfg.Fetcher.MaxPages, baseLogger.With("component", "scanner.listpage")))
	registry.Register(parser.NewJSONFeedScanner(pageClient, cfg.Fetcher.UserAgent,
		cfg.Fetcher.PageDelay, cfg.Fetcher.MaxPages, baseLogger.With("component", "scanner.jsonfeed")))

	source := parser.NewStrategySource(registry, cfg.Sites, cfg.Fetcher, store,
		baseLogger.With("component", "source"))

	fetcher := content.NewFetcher(pageClient, cfg.Fetcher.UserAgent,
		baseLogger.With("component", "content"))

	limiter := llm.NewRateLimiter(cfg.LLM.RateMaxCalls, cfg.LLM.RateWindow)
	retry := llm.RetryPolicy{
		MaxAttempts: cfg.LLM.MaxRetries,
		BaseDelay:   cfg.LLM.BaseDelay,
		MaxDelay:    cfg.LLM.MaxDelay,
		Retryable:   llm.IsTransient,
	}
	client := llm.NewClient(llm.Options{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		CallTimeout: cfg.LLM.CallTimeout,
	}, limiter, retry, baseLogger.With("component", "llm"))

	ingestor := usecase.NewIngestor(source, store, baseLogger.With("component", "ingest"))
	analyzer := usecase.NewAnalyzer(usecase.AnalyzerDeps{
		Events:  store,
		Results: store,
		Fetcher: fetcher,
		Client:  client,
		Logger:  baseLogger.With("component", "analyze"),
	}, cfg.Analysis.BatchSize, cfg.Analysis.BatchDelay, cfg.Analysis.MaxConcurrent)

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Ingestor: ingestor,
		Analyzer: analyzer,
		Stats:    store,
		Notifier: notifier,
		Logger:   baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location())

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		ingestor: ingestor,
		analyzer: analyzer,
		pipeline: pipeline,
		sched:    usecase.NewScheduler(driver, pipeline),
	}, nil
}

// Close releases held resources.
func (a *Application) Close() error {
	return a.store.Close()
}

// RunFetch performs one ingestion round.
func (a *Application) RunFetch(ctx context.Context) error {
	report, err := a.ingestor.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("fetched %d, saved %d, skipped %d\n", report.Fetched, report.Saved, report.Skipped)
	return nil
}

// RunAnalyze classifies up to limit unanalyzed records. With sync the
// records are processed one by one; otherwise a worker pool is used.
func (a *Application) RunAnalyze(ctx context.Context, limit, workers int, sync bool) error {
	var (
		report usecase.AnalyzeReport
		err    error
	)
	if sync {
		report, err = a.analyzer.AnalyzeBatch(ctx, limit)
	} else {
		report, err = a.analyzer.AnalyzeBatchAsync(ctx, limit, workers)
	}
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

// RunReanalyze re-runs classification for failed and no-industry records.
func (a *Application) RunReanalyze(ctx context.Context, limit int) error {
	report, err := a.analyzer.ReanalyzeDegraded(ctx, limit)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

// RunStats prints the analysis statistics.
func (a *Application) RunStats(ctx context.Context) error {
	stats, err := a.store.GetStatistics(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("policies: %d total, %d analyzed (%.1f%%), %d unanalyzed\n",
		stats.TotalPolicies, stats.AnalyzedPolicies, stats.AnalysisRate, stats.UnanalyzedPolicies)
	fmt.Printf("analysis: %d with industries (%.1f%%), %d no industry, %d failed, %d need reanalysis\n",
		stats.SuccessfulAnalysis, stats.SuccessRate, stats.NoIndustryAnalysis,
		stats.FailedAnalysis, stats.NeedReanalysis)
	return nil
}

// RunDaemon starts the interval scheduler and blocks until ctx is done.
func (a *Application) RunDaemon(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("daemon started", "interval", a.cfg.Scheduler.Interval.String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.sched.Stop(stopCtx)
}

func printReport(r usecase.AnalyzeReport) {
	fmt.Printf("analyzed %d: %d succeeded, %d no industry, %d failed (%d persisted)\n",
		r.Analyzed, r.Succeeded, r.NoIndustry, r.Failed, r.Persisted)
}
