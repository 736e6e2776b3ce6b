package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockFeedGuard はURL検証のみ差し替え可能なFeedGuardServiceのテスト実装。
type mockFeedGuard struct {
	validateURLFunc func(rawURL string) error
}

func (m *mockFeedGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockFeedGuard) ValidateURL(rawURL string) error {
	if m.validateURLFunc != nil {
		return m.validateURLFunc(rawURL)
	}
	return nil
}

const testFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Microsoft 365 Release Communications</title>
<item>
<title>Copilot rollout</title>
<link>https://example.com/news/1</link>
<guid>urn:news:1</guid>
<description>&lt;p&gt;Copilot is rolling out.&lt;/p&gt;</description>
<category>Copilot</category>
<pubDate>Fri, 08 Mar 2024 12:00:00 GMT</pubDate>
</item>
<item>
<title>No GUID item</title>
<link>https://example.com/news/2</link>
<description>Second item.</description>
<pubDate>Sat, 09 Mar 2024 12:00:00 GMT</pubDate>
</item>
<item>
<title>No date item</title>
<link>https://example.com/news/3</link>
<guid>urn:news:3</guid>
<description>Undated item.</description>
</item>
</channel>
</rss>`

// TestFetchNews はRSSフィードのパースとレコード変換を検証する。
// GUIDのないアイテムはリンクをIDとし、公開日のないアイテムはスキップされる。
func TestFetchNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "Tenantman/1.0 M365 Monitor" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeedXML)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	f := NewRSSNewsFetcher(srv.Client(), &mockFeedGuard{}, passthroughSanitizer{}, srv.URL, newTestLogger(&buf))

	records, err := f.FetchNews(context.Background())
	if err != nil {
		t.Fatalf("FetchNews がエラーを返した: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("レコード数 = %d, want 2", len(records))
	}

	if records[0].ID != "urn:news:1" {
		t.Errorf("records[0].ID = %q, want urn:news:1", records[0].ID)
	}
	if records[0].Link != "https://example.com/news/1" {
		t.Errorf("records[0].Link = %q", records[0].Link)
	}
	if len(records[0].Tags) != 1 || records[0].Tags[0] != "Copilot" {
		t.Errorf("records[0].Tags = %v, want [Copilot]", records[0].Tags)
	}
	wantAt := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	if !records[0].RecencyAt.Equal(wantAt) {
		t.Errorf("records[0].RecencyAt = %v, want %v", records[0].RecencyAt, wantAt)
	}

	// GUIDがないアイテムはリンクをIDにする
	if records[1].ID != "https://example.com/news/2" {
		t.Errorf("records[1].ID = %q, want リンクURL", records[1].ID)
	}
}

// TestFetchNews_BlockedURL はURL検証に失敗した場合にフェッチしないことを検証する。
func TestFetchNews_BlockedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("ブロック済みURLへのリクエストが発生した")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	guard := &mockFeedGuard{
		validateURLFunc: func(rawURL string) error {
			return errors.New("private address blocked")
		},
	}
	f := NewRSSNewsFetcher(srv.Client(), guard, passthroughSanitizer{}, srv.URL, newTestLogger(&buf))

	if _, err := f.FetchNews(context.Background()); err == nil {
		t.Error("URL検証失敗時はエラーを返すべき")
	}
}

// TestFetchNews_ErrorStatus はフィードのエラーステータスがエラーになることを検証する。
func TestFetchNews_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	f := NewRSSNewsFetcher(srv.Client(), &mockFeedGuard{}, passthroughSanitizer{}, srv.URL, newTestLogger(&buf))

	if _, err := f.FetchNews(context.Background()); err == nil {
		t.Error("503応答はエラーを返すべき")
	}
}
