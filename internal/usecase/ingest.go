package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"PolicyRadar/internal/ports"
)

// IngestReport summarizes one ingestion round.
type IngestReport struct {
	Fetched int
	Saved   int
	Skipped int
}

// Ingestor pulls fresh records from all sources and persists the ones the
// store has not seen yet.
type Ingestor struct {
	source ports.PolicySource
	events ports.EventStore
	logger *slog.Logger
}

// NewIngestor constructs the ingestion use case.
func NewIngestor(source ports.PolicySource, events ports.EventStore, logger *slog.Logger) *Ingestor {
	return &Ingestor{source: source, events: events, logger: logger}
}

// Run fetches all sources and saves the records not already stored.
// A failing dedup probe passes the record through as new rather than
// dropping it: a duplicate row is cheaper than a lost policy.
func (g *Ingestor) Run(ctx context.Context) (IngestReport, error) {
	var report IngestReport

	records, err := g.source.FetchAll(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch sources: %w", err)
	}
	report.Fetched = len(records)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		title, sourceURL := rec.DedupKey()
		exists, err := g.events.Exists(ctx, title, sourceURL)
		if err != nil {
			g.logger.Warn("dedup probe failed, treating record as new", "title", title, "error", err)
			exists = false
		}
		if exists {
			report.Skipped++
			continue
		}

		if _, err := g.events.SaveRecord(ctx, rec); err != nil {
			g.logger.Error("save record failed", "title", title, "error", err)
			continue
		}
		report.Saved++
	}

	g.logger.Info("ingestion done",
		"fetched", report.Fetched, "saved", report.Saved, "skipped", report.Skipped)
	return report, nil
}
