package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"PolicyRadar/internal/domain"
	"PolicyRadar/internal/scanner"
)

// maxEmptyPages is how many consecutive pages may yield nothing before
// pagination is assumed to have run off the end of the archive.
const maxEmptyPages = 3

// optFirstPageLiteral marks sites whose first page URL has no page number
// (index.htm) while later pages follow a numbered template (index_%d.htm).
const optFirstPageLiteral = "firstPageLiteral"

// ListPageScanner walks paginated HTML list pages and extracts policy
// announcements from their anchor elements.
type ListPageScanner struct {
	client    *http.Client
	userAgent string
	pageDelay time.Duration
	maxPages  int
	logger    *slog.Logger
	now       func() time.Time
}

var _ scanner.Scanner = (*ListPageScanner)(nil)

// NewListPageScanner builds the scanner with the shared fetch tuning.
func NewListPageScanner(client *http.Client, userAgent string, pageDelay time.Duration, maxPages int, logger *slog.Logger) *ListPageScanner {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxPages <= 0 {
		maxPages = 10
	}
	return &ListPageScanner{
		client:    client,
		userAgent: userAgent,
		pageDelay: pageDelay,
		maxPages:  maxPages,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ListPageScanner) Name() string { return "listpage" }

// Scan fetches up to MaxPages list pages and collects every anchor that
// looks like a policy announcement. Page-level failures are logged and
// skipped; three consecutive empty pages end pagination early.
func (s *ListPageScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.PolicyRecord, error) {
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.maxPages
	}

	var records []domain.PolicyRecord
	emptyStreak := 0

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		url, ok := s.pageURL(req, page)
		if !ok {
			break
		}

		found, err := s.scanPage(ctx, url, req)
		if err != nil {
			s.logger.Warn("list page fetch failed", "source", req.SourceName, "url", url, "error", err)
			found = nil
		}

		if len(found) == 0 {
			emptyStreak++
			if emptyStreak >= maxEmptyPages {
				s.logger.Debug("pagination exhausted", "source", req.SourceName, "page", page)
				break
			}
		} else {
			emptyStreak = 0
			records = append(records, found...)
		}

		if s.pageDelay > 0 && page < maxPages-1 {
			select {
			case <-ctx.Done():
				return records, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}
	}

	s.logger.Info("list scan finished", "source", req.SourceName, "records", len(records))
	return records, nil
}

// pageURL resolves the URL for the given page index. Sites with a literal
// first page use their second entry as the numbered template.
func (s *ListPageScanner) pageURL(req scanner.Request, page int) (string, bool) {
	if len(req.PageURLs) == 0 {
		return "", false
	}

	if req.Options[optFirstPageLiteral] == "true" {
		if page == 0 {
			return req.PageURLs[0], true
		}
		if len(req.PageURLs) < 2 {
			return "", false
		}
		return fmt.Sprintf(req.PageURLs[1], page), true
	}

	template := req.PageURLs[0]
	if !strings.Contains(template, "%d") {
		return template, page == 0
	}
	return fmt.Sprintf(template, page), true
}

func (s *ListPageScanner) scanPage(ctx context.Context, url string, req scanner.Request) ([]domain.PolicyRecord, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var records []domain.PolicyRecord
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		if ShouldSkipContent(title) || utf8.RuneCountInString(title) <= 10 {
			return
		}

		href, _ := sel.Attr("href")
		link, ok := resolveLink(req.BaseURL, href)
		if !ok {
			return
		}

		date := s.resolveDate(sel, link, title, req.SourceName)
		if !matchesMonth(date, req.TargetMonth) {
			return
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
	})

	return records, nil
}

// resolveDate prefers dates embedded in the link or title, then dates
// rendered near the anchor in the DOM, and finally falls back to today.
func (s *ListPageScanner) resolveDate(sel *goquery.Selection, link, title, source string) string {
	if date := findDate(link + " " + title); date != "" {
		return date
	}

	// Only the nearest ancestors are searched; going higher would pick up
	// dates belonging to unrelated list entries.
	parent := sel.Parent()
	for depth := 0; depth < 3 && parent.Length() > 0; depth++ {
		if date := findStrictDate(parent.Text()); date != "" {
			return date
		}
		parent = parent.Parent()
	}

	today := s.now().Format("2006-01-02")
	s.logger.Warn("no publish date found, using today", "source", source, "title", title)
	return today
}

// resolveLink turns a possibly relative href into an absolute URL.
func resolveLink(baseURL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	switch {
	case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:"):
		return "", false
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href, true
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(baseURL, "/") + href, true
	case strings.HasPrefix(href, "./"):
		return strings.TrimRight(baseURL, "/") + href[1:], true
	default:
		return "", false
	}
}
