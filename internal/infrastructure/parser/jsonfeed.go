package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"PolicyRadar/internal/domain"
	"PolicyRadar/internal/scanner"
)

// JSONFeedScanner pulls announcements from search APIs that return JSON
// pages (the CSRC publishes its policy list this way).
type JSONFeedScanner struct {
	client    *http.Client
	userAgent string
	pageDelay time.Duration
	maxPages  int
	logger    *slog.Logger
	now       func() time.Time
}

var _ scanner.Scanner = (*JSONFeedScanner)(nil)

// NewJSONFeedScanner builds the scanner with the shared fetch tuning.
func NewJSONFeedScanner(client *http.Client, userAgent string, pageDelay time.Duration, maxPages int, logger *slog.Logger) *JSONFeedScanner {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxPages <= 0 {
		maxPages = 10
	}
	return &JSONFeedScanner{
		client:    client,
		userAgent: userAgent,
		pageDelay: pageDelay,
		maxPages:  maxPages,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *JSONFeedScanner) Name() string { return "jsonfeed" }

type feedPage struct {
	Data struct {
		Rows []feedRow `json:"rows"`
	} `json:"data"`
}

type feedRow struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	PublishedTime string `json:"publishedTimeStr"`
}

var htmlTagExpr = regexp.MustCompile(`<[^>]+>`)

// Scan pages through the feed starting at page 1 until MaxPages or three
// consecutive empty pages.
func (s *JSONFeedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.PolicyRecord, error) {
	if len(req.PageURLs) == 0 {
		return nil, fmt.Errorf("source %s has no feed url", req.SourceName)
	}
	template := req.PageURLs[0]

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.maxPages
	}

	var records []domain.PolicyRecord
	emptyStreak := 0

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		url := template
		if strings.Contains(template, "%d") {
			url = fmt.Sprintf(template, page)
		} else if page > 1 {
			break
		}

		found, err := s.scanFeedPage(ctx, url, req)
		if err != nil {
			s.logger.Warn("feed page fetch failed", "source", req.SourceName, "url", url, "error", err)
			found = nil
		}

		if len(found) == 0 {
			emptyStreak++
			if emptyStreak >= maxEmptyPages {
				break
			}
		} else {
			emptyStreak = 0
			records = append(records, found...)
		}

		if s.pageDelay > 0 && page < maxPages {
			select {
			case <-ctx.Done():
				return records, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}
	}

	s.logger.Info("feed scan finished", "source", req.SourceName, "records", len(records))
	return records, nil
}

func (s *JSONFeedScanner) scanFeedPage(ctx context.Context, url string, req scanner.Request) ([]domain.PolicyRecord, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var page feedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	var records []domain.PolicyRecord
	for _, row := range page.Data.Rows {
		title := strings.TrimSpace(htmlTagExpr.ReplaceAllString(row.Title, ""))
		if ShouldSkipContent(title) || utf8.RuneCountInString(title) <= 10 {
			continue
		}

		link, ok := resolveLink(req.BaseURL, row.URL)
		if !ok {
			continue
		}

		date := s.rowDate(row, link, title, req.SourceName)
		if !matchesMonth(date, req.TargetMonth) {
			continue
		}

		records = append(records, domain.PolicyRecord{
			Date:        date,
			Title:       title,
			EventType:   ClassifyEventType(title),
			SourceURL:   link,
			Department:  ExtractDepartment(title, link),
			PolicyLevel: DeterminePolicyLevel(title),
			ImpactLevel: AssessImpactLevel(title),
			ContentType: req.ContentType,
		})
	}
	return records, nil
}

func (s *JSONFeedScanner) rowDate(row feedRow, link, title, source string) string {
	if date := findDate(row.PublishedTime); date != "" {
		return date
	}
	if date := findDate(link + " " + title); date != "" {
		return date
	}
	s.logger.Warn("no publish date found, using today", "source", source, "title", title)
	return s.now().Format("2006-01-02")
}
