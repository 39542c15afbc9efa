package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"PolicyRadar/internal/domain"
	"PolicyRadar/internal/ports"
)

// Store persists policy events, classification results and the fetch log
// in one sqlite database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ ports.EventStore    = (*Store)(nil)
	_ ports.AnalysisStore = (*Store)(nil)
	_ ports.FetchLogStore = (*Store)(nil)
)

// Open opens (creating if needed) the sqlite database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// sqlite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY on concurrent upserts from the async analyzer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS policy_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			title TEXT NOT NULL,
			event_type TEXT,
			content TEXT,
			source_url TEXT,
			department TEXT,
			policy_level TEXT,
			impact_level TEXT,
			content_type TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS policy_analysis (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			policy_id INTEGER NOT NULL UNIQUE,
			industries TEXT,
			analysis_summary TEXT,
			confidence_score REAL,
			content_quality TEXT,
			full_content TEXT,
			status TEXT NOT NULL DEFAULT 'success',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (policy_id) REFERENCES policy_events (id)
		)`,
		`CREATE TABLE IF NOT EXISTS fetch_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_name TEXT NOT NULL UNIQUE,
			last_fetch_time TIMESTAMP,
			fetch_status TEXT,
			error_message TEXT,
			records_fetched INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_policy_events_date ON policy_events (date)`,
		`CREATE INDEX IF NOT EXISTS idx_policy_events_dedup ON policy_events (title, source_url)`,
		`CREATE INDEX IF NOT EXISTS idx_policy_analysis_policy ON policy_analysis (policy_id)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Exists reports whether a record with the same title and source url is
// already stored.
func (s *Store) Exists(ctx context.Context, title, sourceURL string) (bool, error) {
	query, args, err := sq.Select("1").
		From("policy_events").
		Where(sq.Eq{"title": title, "source_url": sourceURL}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup probe: %w", err)
	}
	return true, nil
}

// SaveRecord inserts a policy record and returns its assigned id.
func (s *Store) SaveRecord(ctx context.Context, rec domain.PolicyRecord) (int64, error) {
	query, args, err := sq.Insert("policy_events").
		Columns("date", "title", "event_type", "content", "source_url",
			"department", "policy_level", "impact_level", "content_type").
		Values(rec.Date, rec.Title, rec.EventType, rec.Content, rec.SourceURL,
			rec.Department, rec.PolicyLevel, rec.ImpactLevel, rec.ContentType).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("save record: %w", err)
	}
	return res.LastInsertId()
}

// UnanalyzedRecords returns the newest records that have no analysis row.
func (s *Store) UnanalyzedRecords(ctx context.Context, limit int) ([]domain.PolicyRecord, error) {
	builder := sq.Select(recordColumns()...).
		From("policy_events pe").
		LeftJoin("policy_analysis pa ON pa.policy_id = pe.id").
		Where("pa.id IS NULL").
		OrderBy("pe.date DESC", "pe.id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	return s.queryRecords(ctx, builder)
}

// DegradedRecords returns records whose analysis failed or found no
// industries, newest first. These are the reanalysis candidates.
func (s *Store) DegradedRecords(ctx context.Context, limit int) ([]domain.PolicyRecord, error) {
	builder := sq.Select(recordColumns()...).
		From("policy_events pe").
		Join("policy_analysis pa ON pa.policy_id = pe.id").
		Where(sq.Or{
			sq.Eq{"pa.status": string(domain.StatusFailed)},
			sq.Like{"pa.industries": "%" + domain.SentinelNoIndustry + "%"},
		}).
		OrderBy("pe.date DESC", "pe.id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	return s.queryRecords(ctx, builder)
}

func recordColumns() []string {
	return []string{
		"pe.id", "pe.date", "pe.title", "pe.event_type", "pe.content",
		"pe.source_url", "pe.department", "pe.policy_level",
		"pe.impact_level", "pe.content_type", "pe.created_at",
	}
}

func (s *Store) queryRecords(ctx context.Context, builder sq.SelectBuilder) ([]domain.PolicyRecord, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.PolicyRecord
	for rows.Next() {
		var rec domain.PolicyRecord
		var content, sourceURL, department, policyLevel, impactLevel, contentType sql.NullString
		var eventType sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Title, &eventType, &content,
			&sourceURL, &department, &policyLevel, &impactLevel, &contentType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.EventType = eventType.String
		rec.Content = content.String
		rec.SourceURL = sourceURL.String
		rec.Department = department.String
		rec.PolicyLevel = policyLevel.String
		rec.ImpactLevel = impactLevel.String
		rec.ContentType = contentType.String
		rec.CreatedAt = createdAt.Time
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertResult stores the classification for a policy, replacing any
// previous result for the same policy id.
func (s *Store) UpsertResult(ctx context.Context, res domain.ClassificationResult) error {
	industries, err := json.Marshal(res.Industries)
	if err != nil {
		return fmt.Errorf("encode industries: %w", err)
	}

	query, args, err := sq.Insert("policy_analysis").
		Columns("policy_id", "industries", "analysis_summary",
			"confidence_score", "content_quality", "full_content", "status").
		Values(res.PolicyID, string(industries), res.AnalysisSummary,
			res.ConfidenceScore, string(res.ContentQuality), res.FullContent, string(res.Status)).
		Suffix(`ON CONFLICT (policy_id) DO UPDATE SET
			industries = excluded.industries,
			analysis_summary = excluded.analysis_summary,
			confidence_score = excluded.confidence_score,
			content_quality = excluded.content_quality,
			full_content = excluded.full_content,
			status = excluded.status,
			created_at = CURRENT_TIMESTAMP`).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert analysis for policy %d: %w", res.PolicyID, err)
	}
	return nil
}

// GetClassification returns the stored result for a policy, or nil when
// the policy has not been analyzed yet.
func (s *Store) GetClassification(ctx context.Context, policyID int64) (*domain.ClassificationResult, error) {
	builder := sq.Select(analysisColumns()...).
		From("policy_analysis").
		Where(sq.Eq{"policy_id": policyID})

	results, err := s.queryResults(ctx, builder)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// FindByIndustryKeyword returns results whose industry list mentions the
// keyword, newest first.
func (s *Store) FindByIndustryKeyword(ctx context.Context, keyword string) ([]domain.ClassificationResult, error) {
	builder := sq.Select(analysisColumns()...).
		From("policy_analysis").
		Where(sq.Like{"industries": "%" + keyword + "%"}).
		OrderBy("created_at DESC")

	return s.queryResults(ctx, builder)
}

func analysisColumns() []string {
	return []string{
		"policy_id", "industries", "analysis_summary", "confidence_score",
		"content_quality", "full_content", "status", "created_at",
	}
}

func (s *Store) queryResults(ctx context.Context, builder sq.SelectBuilder) ([]domain.ClassificationResult, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	defer rows.Close()

	var results []domain.ClassificationResult
	for rows.Next() {
		var res domain.ClassificationResult
		var industries, summary, quality, fullContent, status sql.NullString
		var confidence sql.NullFloat64
		var createdAt sql.NullTime
		if err := rows.Scan(&res.PolicyID, &industries, &summary, &confidence,
			&quality, &fullContent, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if industries.String != "" {
			if err := json.Unmarshal([]byte(industries.String), &res.Industries); err != nil {
				s.logger.Warn("stored industries are not valid JSON", "policy_id", res.PolicyID, "error", err)
			}
		}
		res.AnalysisSummary = summary.String
		res.ConfidenceScore = confidence.Float64
		res.ContentQuality = domain.ContentQuality(quality.String)
		res.FullContent = fullContent.String
		res.Status = domain.AnalysisStatus(status.String)
		res.CreatedAt = createdAt.Time
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetStatistics partitions the stored records and results for reporting.
func (s *Store) GetStatistics(ctx context.Context) (domain.AnalysisStatistics, error) {
	var stats domain.AnalysisStatistics

	counts := []struct {
		dest    *int
		builder sq.SelectBuilder
	}{
		{&stats.TotalPolicies, sq.Select("COUNT(*)").From("policy_events")},
		{&stats.AnalyzedPolicies, sq.Select("COUNT(*)").From("policy_analysis")},
		{&stats.FailedAnalysis, sq.Select("COUNT(*)").From("policy_analysis").
			Where(sq.Eq{"status": string(domain.StatusFailed)})},
		{&stats.NoIndustryAnalysis, sq.Select("COUNT(*)").From("policy_analysis").
			Where(sq.Like{"industries": "%" + domain.SentinelNoIndustry + "%"})},
	}
	for _, c := range counts {
		query, args, err := c.builder.ToSql()
		if err != nil {
			return stats, err
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("count statistics: %w", err)
		}
	}

	stats.UnanalyzedPolicies = stats.TotalPolicies - stats.AnalyzedPolicies
	stats.SuccessfulAnalysis = stats.AnalyzedPolicies - stats.FailedAnalysis - stats.NoIndustryAnalysis
	stats.NeedReanalysis = stats.FailedAnalysis + stats.NoIndustryAnalysis

	if stats.TotalPolicies > 0 {
		stats.AnalysisRate = float64(stats.AnalyzedPolicies) / float64(stats.TotalPolicies) * 100
	}
	if stats.AnalyzedPolicies > 0 {
		stats.SuccessRate = float64(stats.SuccessfulAnalysis) / float64(stats.AnalyzedPolicies) * 100
	}
	return stats, nil
}

// GetFetchLog returns the last-attempt entry for a source, or nil when the
// source has never been fetched.
func (s *Store) GetFetchLog(ctx context.Context, sourceName string) (*domain.FetchLogEntry, error) {
	query, args, err := sq.Select("source_name", "last_fetch_time", "fetch_status",
		"error_message", "records_fetched", "updated_at").
		From("fetch_log").
		Where(sq.Eq{"source_name": sourceName}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var entry domain.FetchLogEntry
	var lastFetch, updatedAt sql.NullTime
	var status, errMsg sql.NullString
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&entry.SourceName,
		&lastFetch, &status, &errMsg, &entry.RecordsFetched, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fetch log for %s: %w", sourceName, err)
	}

	entry.LastFetchTime = lastFetch.Time
	entry.Status = domain.FetchStatus(status.String)
	entry.ErrorMessage = errMsg.String
	entry.UpdatedAt = updatedAt.Time
	return &entry, nil
}

// RecordFetchStatus upserts the per-source attempt entry.
func (s *Store) RecordFetchStatus(ctx context.Context, sourceName string, status domain.FetchStatus, records int, errMsg string) error {
	now := time.Now().UTC()
	query, args, err := sq.Insert("fetch_log").
		Columns("source_name", "last_fetch_time", "fetch_status", "error_message", "records_fetched", "updated_at").
		Values(sourceName, now, string(status), errMsg, records, now).
		Suffix(`ON CONFLICT (source_name) DO UPDATE SET
			last_fetch_time = excluded.last_fetch_time,
			fetch_status = excluded.fetch_status,
			error_message = excluded.error_message,
			records_fetched = excluded.records_fetched,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record fetch status for %s: %w", sourceName, err)
	}
	return nil
}
