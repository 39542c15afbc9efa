package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"PolicyRadar/internal/ports"
)

// autoAnalyzeThreshold triggers an immediate analysis pass after an
// ingestion round that saved at least this many new records.
const autoAnalyzeThreshold = 5

// PipelineDeps wires the use cases into the daily pipeline.
type PipelineDeps struct {
	Ingestor *Ingestor
	Analyzer *Analyzer
	Stats    ports.AnalysisStore
	Notifier ports.Notifier
	Logger   *slog.Logger
}

// Pipeline is the daily workflow: ingest all sources, analyze the fresh
// records when enough arrived, and publish a digest of the run.
type Pipeline struct {
	ingestor *Ingestor
	analyzer *Analyzer
	stats    ports.AnalysisStore
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		ingestor: deps.Ingestor,
		analyzer: deps.Analyzer,
		stats:    deps.Stats,
		notifier: deps.Notifier,
		logger:   deps.Logger,
	}
}

// ProcessDay orchestrates one scheduled run. Ingestion failure aborts the
// run; analysis and notification failures are logged but do not.
func (p *Pipeline) ProcessDay(ctx context.Context, trigger time.Time) error {
	p.logger.Info("daily run started", "trigger", trigger.Format("2006-01-02 15:04:05"))

	ingest, err := p.ingestor.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	var analyzed AnalyzeReport
	if ingest.Saved >= autoAnalyzeThreshold {
		analyzed, err = p.analyzer.AnalyzeBatchAsync(ctx, ingest.Saved, 0)
		if err != nil {
			p.logger.Error("auto analysis failed", "error", err)
		}
	} else {
		p.logger.Info("too few new records for auto analysis", "saved", ingest.Saved)
	}

	if p.notifier == nil {
		return nil
	}

	digest := p.buildDigest(ctx, trigger, ingest, analyzed)
	if err := p.notifier.PublishDigest(ctx, digest); err != nil {
		p.logger.Error("publish digest failed", "error", err)
	}
	return nil
}

func (p *Pipeline) buildDigest(ctx context.Context, trigger time.Time, ingest IngestReport, analyzed AnalyzeReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "政策雷达日报 %s\n\n", trigger.Format("2006-01-02"))
	fmt.Fprintf(&b, "抓取: %d 条, 新增: %d 条, 重复: %d 条\n",
		ingest.Fetched, ingest.Saved, ingest.Skipped)

	if analyzed.Analyzed > 0 {
		fmt.Fprintf(&b, "分析: %d 条 (成功 %d, 无相关行业 %d, 失败 %d)\n",
			analyzed.Analyzed, analyzed.Succeeded, analyzed.NoIndustry, analyzed.Failed)
	}

	if p.stats != nil {
		if stats, err := p.stats.GetStatistics(ctx); err != nil {
			p.logger.Warn("statistics unavailable for digest", "error", err)
		} else {
			fmt.Fprintf(&b, "\n累计: %d 条, 已分析 %d 条 (%.1f%%), 待重新分析 %d 条\n",
				stats.TotalPolicies, stats.AnalyzedPolicies, stats.AnalysisRate, stats.NeedReanalysis)
		}
	}

	return b.String()
}
