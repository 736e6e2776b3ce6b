// Package graph はMicrosoft Graph APIとの連携機能を提供する。
// テナントごとの資格情報によるトークン取得、サービスアナウンスの取得、
// Windows既知の問題の取得、M365ニュースRSSの取得、通知メール送信を含む。
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenRefreshMargin はトークンの有効期限切れ前に再取得を始める余裕時間。
const tokenRefreshMargin = 5 * time.Minute

// TokenProvider はclient credentialsフローによるアクセストークンの取得と
// キャッシュを行う。トークンはディレクトリID+クライアントIDごとに
// キャッシュされ、有効期限の5分前まで再利用される。
type TokenProvider struct {
	httpClient   *http.Client
	loginBaseURL string

	mu    sync.Mutex
	cache map[string]cachedToken

	// テストで時刻を固定するためのフック
	now func() time.Time
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// NewTokenProvider はTokenProviderの新しいインスタンスを生成する。
func NewTokenProvider(httpClient *http.Client, loginBaseURL string) *TokenProvider {
	return &TokenProvider{
		httpClient:   httpClient,
		loginBaseURL: strings.TrimRight(loginBaseURL, "/"),
		cache:        make(map[string]cachedToken),
		now:          time.Now,
	}
}

// tokenResponse はトークンエンドポイントの応答。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token は指定ディレクトリの資格情報でアクセストークンを取得する。
// 有効なキャッシュがあればそれを返す。
func (p *TokenProvider) Token(ctx context.Context, directoryID, clientID, clientSecret, scope string) (string, error) {
	key := directoryID + "|" + clientID

	p.mu.Lock()
	if cached, ok := p.cache[key]; ok && p.now().Before(cached.expiresAt) {
		token := cached.accessToken
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	token, expiresIn, err := p.requestToken(ctx, directoryID, clientID, clientSecret, scope)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.cache[key] = cachedToken{
		accessToken: token,
		expiresAt:   p.now().Add(time.Duration(expiresIn)*time.Second - tokenRefreshMargin),
	}
	p.mu.Unlock()

	return token, nil
}

// Invalidate は指定ディレクトリのキャッシュ済みトークンを破棄する。
// 401応答を受けた呼び出し側が再取得前に使用する。
func (p *TokenProvider) Invalidate(directoryID, clientID string) {
	p.mu.Lock()
	delete(p.cache, directoryID+"|"+clientID)
	p.mu.Unlock()
}

func (p *TokenProvider) requestToken(ctx context.Context, directoryID, clientID, clientSecret, scope string) (string, int, error) {
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.loginBaseURL, directoryID)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("scope", scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("トークンリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("トークンエンドポイントの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("トークン応答の読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("トークンエンドポイントがステータス %d を返しました", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("トークン応答のデコードに失敗しました: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("トークン応答にaccess_tokenが含まれていません")
	}

	return tr.AccessToken, tr.ExpiresIn, nil
}
