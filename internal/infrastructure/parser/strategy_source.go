package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PolicyRadar/internal/config"
	"PolicyRadar/internal/domain"
	"PolicyRadar/internal/ports"
	"PolicyRadar/internal/scanner"
)

// StrategySource implements PolicySource via registered scanner strategies.
// It owns the per-source throttle and the fetch log: a source that was
// attempted recently is skipped, and every attempt is recorded.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	fetchCfg config.FetcherConfig
	fetchLog ports.FetchLogStore
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.PolicySource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, fetchCfg config.FetcherConfig, fetchLog ports.FetchLogStore, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		fetchCfg: fetchCfg,
		fetchLog: fetchLog,
		logger:   log,
		now:      time.Now,
	}
}

// FetchAll iterates over configured sites and executes their scanners.
// A failing site is logged and recorded but never aborts the other sites.
// Records are deduplicated across sources by (title, source url).
func (s *StrategySource) FetchAll(ctx context.Context) ([]domain.PolicyRecord, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.logger.Debug("fetch all sources", "sites", len(s.sites))

	type dedupKey struct{ title, url string }
	seen := make(map[dedupKey]struct{})
	var aggregated []domain.PolicyRecord

	for _, site := range s.sites {
		if err := ctx.Err(); err != nil {
			return aggregated, err
		}

		if s.recentlyFetched(ctx, site.Name) {
			s.logger.Info("source fetched recently, skipping", "source", site.Name)
			continue
		}

		results, err := s.fetchSite(ctx, site)
		if err != nil {
			s.logger.Warn("source fetch failed", "source", site.Name, "error", err)
			s.record(ctx, site.Name, domain.FetchError, 0, err.Error())
			continue
		}

		fresh := 0
		for _, rec := range results {
			title, url := rec.DedupKey()
			key := dedupKey{title, url}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			aggregated = append(aggregated, rec)
			fresh++
		}

		s.logger.Debug("source produced records", "source", site.Name, "scanned", len(results), "unique", fresh)
		s.record(ctx, site.Name, domain.FetchSuccess, len(results), "")
	}

	s.logger.Info("fetch round done", "total_records", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) fetchSite(ctx context.Context, site config.SiteConfig) ([]domain.PolicyRecord, error) {
	strategy, err := s.registry.Resolve(site.Scanner)
	if err != nil {
		return nil, err
	}

	return strategy.Scan(ctx, scanner.Request{
		SourceName:  site.Name,
		BaseURL:     site.BaseURL,
		PageURLs:    site.PageURLs,
		ContentType: site.ContentType,
		TargetMonth: s.fetchCfg.TargetMonth,
		MaxPages:    s.fetchCfg.MaxPages,
		Options:     site.Options,
	})
}

// recentlyFetched consults the fetch log. Any attempt inside the minimum
// interval counts, successful or not, so a broken source does not get
// hammered in a tight loop. Log read failures never block fetching.
func (s *StrategySource) recentlyFetched(ctx context.Context, sourceName string) bool {
	if s.fetchLog == nil || s.fetchCfg.MinIntervalHours <= 0 {
		return false
	}

	entry, err := s.fetchLog.GetFetchLog(ctx, sourceName)
	if err != nil {
		s.logger.Warn("fetch log read failed", "source", sourceName, "error", err)
		return false
	}
	if entry == nil {
		return false
	}

	minInterval := time.Duration(s.fetchCfg.MinIntervalHours * float64(time.Hour))
	return s.now().Sub(entry.LastFetchTime) < minInterval
}

func (s *StrategySource) record(ctx context.Context, sourceName string, status domain.FetchStatus, records int, errMsg string) {
	if s.fetchLog == nil {
		return
	}
	if err := s.fetchLog.RecordFetchStatus(ctx, sourceName, status, records, errMsg); err != nil {
		s.logger.Warn("fetch log write failed", "source", sourceName, "error", err)
	}
}
