package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/security"
)

// graphScope はclient credentialsフローで要求するスコープ。
// 付与済みのアプリケーション権限がそのまま反映される。
const graphScope = "https://graph.microsoft.com/.default"

// maxPages はページネーション追跡の上限。@odata.nextLinkの異常ループ対策。
const maxPages = 50

// NewsFetcher はM365ニュースの取得インターフェース。
// ニュースはテナント固有の資格情報を必要としない公開RSSのため、
// Graph API呼び出しとは分離している。
type NewsFetcher interface {
	FetchNews(ctx context.Context) ([]model.Record, error)
}

// Client はMicrosoft Graph APIのクライアント。
// テナントごとの資格情報でトークンを取得し、サービスアナウンスと
// Windows既知の問題を取得する。全テナント共有のレートリミッタで
// Graph APIへの呼び出し頻度を抑制する。
type Client struct {
	httpClient *http.Client
	tokens     *TokenProvider
	news       NewsFetcher
	sanitizer  security.BodySanitizer
	limiter    *rate.Limiter
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// ratePerSecはGraph APIへの1秒あたりの最大リクエスト数。
func NewClient(
	httpClient *http.Client,
	tokens *TokenProvider,
	news NewsFetcher,
	sanitizer security.BodySanitizer,
	baseURL string,
	ratePerSec float64,
	logger *slog.Logger,
) *Client {
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		news:       news,
		sanitizer:  sanitizer,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:     logger,
		baseURL:    baseURL,
	}
}

// FetchCategory は指定カテゴリのレコードをテナントの資格情報で取得する。
func (c *Client) FetchCategory(ctx context.Context, tenant *model.Tenant, category model.Category) ([]model.Record, error) {
	switch category {
	case model.CategoryUpdates:
		return c.fetchMessages(ctx, tenant)
	case model.CategoryKnownIssues:
		return c.fetchKnownIssues(ctx, tenant)
	case model.CategoryNews:
		return c.news.FetchNews(ctx)
	}
	return nil, fmt.Errorf("未知のカテゴリです: %q", category)
}

// serviceMessage はserviceAnnouncement/messagesの1要素。
type serviceMessage struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Category             string    `json:"category"`
	Severity             string    `json:"severity"`
	IsMajorChange        bool      `json:"isMajorChange"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Body                 struct {
		Content string `json:"content"`
	} `json:"body"`
}

type messagesPage struct {
	Value    []serviceMessage `json:"value"`
	NextLink string           `json:"@odata.nextLink"`
}

// fetchMessages はメッセージセンターの全アナウンスを取得する。
// @odata.nextLinkに従って全ページを取得し、本文はサニタイズして保持する。
func (c *Client) fetchMessages(ctx context.Context, tenant *model.Tenant) ([]model.Record, error) {
	token, err := c.tokens.Token(ctx, tenant.DirectoryID, tenant.ApplicationID, tenant.ApplicationSecret, graphScope)
	if err != nil {
		return nil, fmt.Errorf("アクセストークンの取得に失敗しました: %w", err)
	}

	fetchedAt := time.Now().UTC()
	var records []model.Record

	pageURL := c.baseURL + "/admin/serviceAnnouncement/messages"
	for page := 0; pageURL != ""; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("ページ数が上限を超えました: %d", maxPages)
		}

		var result messagesPage
		if err := c.getJSON(ctx, pageURL, token, &result); err != nil {
			return nil, fmt.Errorf("サービスアナウンスの取得に失敗しました: %w", err)
		}

		for _, msg := range result.Value {
			records = append(records, model.Record{
				ID:            msg.ID,
				Category:      model.CategoryUpdates,
				Title:         msg.Title,
				Body:          c.sanitizer.Sanitize(msg.Body.Content),
				Tag:           msg.Category,
				Severity:      msg.Severity,
				IsMajorChange: msg.IsMajorChange,
				RecencyAt:     msg.LastModifiedDateTime,
				FetchedAt:     fetchedAt,
			})
		}

		pageURL = result.NextLink
	}

	return records, nil
}

// windowsProduct はwindows/updates/productsの1要素。
type windowsProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type productsPage struct {
	Value    []windowsProduct `json:"value"`
	NextLink string           `json:"@odata.nextLink"`
}

// knownIssue はproducts/{id}/knownIssuesの1要素。
type knownIssue struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	WebViewURL       string     `json:"webViewUrl"`
	Status           string     `json:"status"`
	StartDateTime    time.Time  `json:"startDateTime"`
	ResolvedDateTime *time.Time `json:"resolvedDateTime"`
}

type knownIssuesPage struct {
	Value    []knownIssue `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// fetchKnownIssues はWindows製品一覧を取得し、製品ごとの既知の問題を集約する。
// 問題IDは製品間で重複しないが、念のため製品IDと組み合わせたIDで保存する。
func (c *Client) fetchKnownIssues(ctx context.Context, tenant *model.Tenant) ([]model.Record, error) {
	token, err := c.tokens.Token(ctx, tenant.DirectoryID, tenant.ApplicationID, tenant.ApplicationSecret, graphScope)
	if err != nil {
		return nil, fmt.Errorf("アクセストークンの取得に失敗しました: %w", err)
	}

	fetchedAt := time.Now().UTC()

	var products []windowsProduct
	pageURL := c.baseURL + "/admin/windows/updates/products"
	for page := 0; pageURL != ""; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("ページ数が上限を超えました: %d", maxPages)
		}

		var result productsPage
		if err := c.getJSON(ctx, pageURL, token, &result); err != nil {
			return nil, fmt.Errorf("Windows製品一覧の取得に失敗しました: %w", err)
		}
		products = append(products, result.Value...)
		pageURL = result.NextLink
	}

	var records []model.Record
	for _, product := range products {
		pageURL := fmt.Sprintf("%s/admin/windows/updates/products/%s/knownIssues", c.baseURL, product.ID)
		for page := 0; pageURL != ""; page++ {
			if page >= maxPages {
				return nil, fmt.Errorf("ページ数が上限を超えました: %d", maxPages)
			}

			var result knownIssuesPage
			if err := c.getJSON(ctx, pageURL, token, &result); err != nil {
				return nil, fmt.Errorf("既知の問題の取得に失敗しました (product=%s): %w", product.Name, err)
			}

			for _, issue := range result.Value {
				records = append(records, model.Record{
					ID:          product.ID + ":" + issue.ID,
					Category:    model.CategoryKnownIssues,
					Title:       issue.Title,
					Body:        c.sanitizer.Sanitize(issue.Description),
					ProductID:   product.ID,
					ProductName: product.Name,
					WebViewURL:  issue.WebViewURL,
					Status:      issue.Status,
					ResolvedAt:  issue.ResolvedDateTime,
					RecencyAt:   issue.StartDateTime,
					FetchedAt:   fetchedAt,
				})
			}

			pageURL = result.NextLink
		}
	}

	return records, nil
}

// getJSON はBearerトークン付きでGETし、JSON応答をデコードする。
// レートリミッタの許可を待ってから実行する。
func (c *Client) getJSON(ctx context.Context, rawURL, token string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("レートリミッタの待機に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Graph APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("url", rawURL),
		)
		return fmt.Errorf("Graph APIがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスのデコードに失敗しました: %w", err)
	}
	return nil
}
