package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newTokenServer はトークンエンドポイントのテストサーバーを生成する。
func newTokenServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("フォームのパースに失敗: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		if got := r.PostForm.Get("scope"); got != graphScope {
			t.Errorf("scope = %q, want %q", got, graphScope)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	}))
}

// TestTokenProvider_CachesToken は有効期限内のトークンが再利用されることを検証する。
func TestTokenProvider_CachesToken(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	p := NewTokenProvider(srv.Client(), srv.URL)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		token, err := p.Token(ctx, "dir-1", "app-1", "secret", graphScope)
		if err != nil {
			t.Fatalf("Token がエラーを返した: %v", err)
		}
		if token != "token-abc" {
			t.Errorf("token = %q, want token-abc", token)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("トークンエンドポイントの呼び出し回数 = %d, want 1", got)
	}
}

// TestTokenProvider_RefreshesExpiredToken は有効期限切れのトークンが
// 再取得されることを検証する。
func TestTokenProvider_RefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	p := NewTokenProvider(srv.Client(), srv.URL)
	now := time.Now()
	p.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := p.Token(ctx, "dir-1", "app-1", "secret", graphScope); err != nil {
		t.Fatalf("Token がエラーを返した: %v", err)
	}

	// expires_in=3600秒からリフレッシュ余裕5分を引いた期限を過ぎた時刻に進める
	now = now.Add(56 * time.Minute)
	if _, err := p.Token(ctx, "dir-1", "app-1", "secret", graphScope); err != nil {
		t.Fatalf("Token がエラーを返した: %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("トークンエンドポイントの呼び出し回数 = %d, want 2", got)
	}
}

// TestTokenProvider_CacheIsPerDirectory はキャッシュがディレクトリ+
// クライアントごとに分離されることを検証する。
func TestTokenProvider_CacheIsPerDirectory(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	p := NewTokenProvider(srv.Client(), srv.URL)

	ctx := context.Background()
	if _, err := p.Token(ctx, "dir-1", "app-1", "secret", graphScope); err != nil {
		t.Fatalf("Token がエラーを返した: %v", err)
	}
	if _, err := p.Token(ctx, "dir-2", "app-2", "secret", graphScope); err != nil {
		t.Fatalf("Token がエラーを返した: %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("トークンエンドポイントの呼び出し回数 = %d, want 2", got)
	}
}

// TestTokenProvider_Invalidate はキャッシュ破棄後に再取得されることを検証する。
func TestTokenProvider_Invalidate(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	p := NewTokenProvider(srv.Client(), srv.URL)

	ctx := context.Background()
	if _, err := p.Token(ctx, "dir-1", "app-1", "secret", graphScope); err != nil {
		t.Fatalf("Token がエラーを返した: %v", err)
	}

	p.Invalidate("dir-1", "app-1")

	if _, err := p.Token(ctx, "dir-1", "app-1", "secret", graphScope); err != nil {
		t.Fatalf("Token がエラーを返した: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("トークンエンドポイントの呼び出し回数 = %d, want 2", got)
	}
}

// TestTokenProvider_ErrorStatus はエラーステータス応答がエラーになることを検証する。
func TestTokenProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewTokenProvider(srv.Client(), srv.URL)

	if _, err := p.Token(context.Background(), "dir-1", "app-1", "bad", graphScope); err == nil {
		t.Error("401応答はエラーを返すべき")
	}
}
