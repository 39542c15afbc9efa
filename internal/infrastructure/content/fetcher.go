package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"PolicyRadar/internal/ports"
)

// Selectors tried in order against the article page. Government sites use
// a handful of recurring content container classes; TRS_Editor and
// Custom_UnionStyle come from the CMS most ministries run.
var contentSelectors = []string{
	".content",
	".article-content",
	".article",
	".main-content",
	"#content",
	".text",
	".article-body",
	".news-content",
	".TRS_Editor",
	".Custom_UnionStyle",
}

const (
	// selectorMinRunes is the acceptance threshold for a matched container.
	selectorMinRunes = 200
	// fallbackMinRunes is the lower bar applied to the whole-body fallback.
	fallbackMinRunes = 100
)

// Fetcher downloads a policy page and extracts its readable text.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

var _ ports.ContentFetcher = (*Fetcher)(nil)

// NewFetcher builds a fetcher with the shared page-fetch tuning.
func NewFetcher(client *http.Client, userAgent string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{client: client, userAgent: userAgent, logger: logger}
}

// FetchText downloads sourceURL and returns its main text. It tries the
// known content selectors first and falls back to the filtered page body.
// An empty string with nil error means the page had no usable text.
func (f *Fetcher) FetchText(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", sourceURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", sourceURL, err)
	}

	doc.Find("script, style, nav, header, footer").Remove()

	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := normalize(sel.Text())
		if utf8.RuneCountInString(text) >= selectorMinRunes {
			f.logger.Debug("content extracted", "url", sourceURL, "selector", selector, "runes", utf8.RuneCountInString(text))
			return text, nil
		}
	}

	text := bodyFallback(doc)
	if utf8.RuneCountInString(text) >= fallbackMinRunes {
		f.logger.Debug("content extracted from body fallback", "url", sourceURL, "runes", utf8.RuneCountInString(text))
		return text, nil
	}

	f.logger.Warn("no usable content on page", "url", sourceURL)
	return "", nil
}

// bodyFallback takes the whole body text and strips the short lines that
// are almost always navigation or chrome.
func bodyFallback(doc *goquery.Document) string {
	raw := doc.Find("body").Text()

	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < 20 {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func normalize(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
