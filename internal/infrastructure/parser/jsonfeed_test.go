package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"PolicyRadar/internal/logging"
	"PolicyRadar/internal/scanner"
)

func TestJSONFeedScan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"data":{"rows":[
				{"title":"证监会关于<em>加强</em>上市公司监管的意见","url":"/doc/2026/a.html","publishedTimeStr":"2026-08-12 10:30:00"},
				{"title":"查看更多","url":"/more","publishedTimeStr":"2026-08-12"},
				{"title":"证监会发布资本市场对外开放新规定","url":"http://www.csrc.gov.cn/doc/b.html","publishedTimeStr":"2026-08-03 09:00:00"}
			]}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"rows":[]}}`)
	}))
	defer srv.Close()

	s := NewJSONFeedScanner(http.DefaultClient, "test-agent", 0, 5, logging.New("error"))
	records, err := s.Scan(context.Background(), scanner.Request{
		SourceName:  "csrc",
		BaseURL:     "http://www.csrc.gov.cn",
		PageURLs:    []string{srv.URL + "/search?page=%d"},
		ContentType: "政策",
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}

	first := records[0]
	if first.Title != "证监会关于加强上市公司监管的意见" {
		t.Errorf("html tags not stripped from title: %q", first.Title)
	}
	if first.Date != "2026-08-12" {
		t.Errorf("date = %s", first.Date)
	}
	if first.SourceURL != "http://www.csrc.gov.cn/doc/2026/a.html" {
		t.Errorf("relative url not resolved: %s", first.SourceURL)
	}
	if first.Department != "证监会" {
		t.Errorf("department = %s", first.Department)
	}
}

func TestJSONFeedScanBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	s := NewJSONFeedScanner(http.DefaultClient, "", 0, 5, logging.New("error"))
	records, err := s.Scan(context.Background(), scanner.Request{
		SourceName: "csrc",
		BaseURL:    "http://www.csrc.gov.cn",
		PageURLs:   []string{srv.URL + "/search?page=%d"},
	})
	if err != nil {
		t.Fatalf("Scan should swallow page-level errors, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %+v, want none", records)
	}
}
