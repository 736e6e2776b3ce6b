package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/security"
)

// RSSNewsFetcher はM365ニュースをリリースコミュニケーションRSSフィードから
// 取得するNewsFetcher実装。フィードは公開されており認証不要。
type RSSNewsFetcher struct {
	httpClient *http.Client
	guard      security.FeedGuardService
	sanitizer  security.BodySanitizer
	logger     *slog.Logger
	feedURL    string
}

// NewRSSNewsFetcher はRSSNewsFetcherの新しいインスタンスを生成する。
// httpClientにはguard.NewSafeClientで生成したSSRF防止付きクライアントを
// 渡すこと。
func NewRSSNewsFetcher(
	httpClient *http.Client,
	guard security.FeedGuardService,
	sanitizer security.BodySanitizer,
	feedURL string,
	logger *slog.Logger,
) *RSSNewsFetcher {
	return &RSSNewsFetcher{
		httpClient: httpClient,
		guard:      guard,
		sanitizer:  sanitizer,
		logger:     logger,
		feedURL:    feedURL,
	}
}

// FetchNews はRSSフィードからニュース一覧を取得する。
// 公開日が取得できないアイテムは更新日で代用し、どちらもない場合は
// スキップする。アイテムのIDはGUID、なければリンクを使用する。
func (f *RSSNewsFetcher) FetchNews(ctx context.Context) ([]model.Record, error) {
	if err := f.guard.ValidateURL(f.feedURL); err != nil {
		return nil, fmt.Errorf("フィードURLの検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Tenantman/1.0 M365 Monitor")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ニュースフィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ニュースフィードがステータス %d を返しました", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ニュースフィードのパースに失敗しました: %w", err)
	}

	fetchedAt := time.Now().UTC()
	var records []model.Record

	for _, item := range feed.Items {
		publishedAt := item.PublishedParsed
		if publishedAt == nil {
			publishedAt = item.UpdatedParsed
		}
		if publishedAt == nil {
			f.logger.Warn("公開日のないニュースアイテムをスキップします",
				slog.String("title", item.Title),
			)
			continue
		}

		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}

		records = append(records, model.Record{
			ID:        id,
			Category:  model.CategoryNews,
			Title:     item.Title,
			Body:      f.sanitizer.Sanitize(item.Description),
			Link:      item.Link,
			Tags:      item.Categories,
			RecencyAt: publishedAt.UTC(),
			FetchedAt: fetchedAt,
		})
	}

	return records, nil
}
