package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tenantman/internal/metrics"
	"github.com/hitoshi/tenantman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	TenantService  TenantServiceInterface
	SettingService SettingServiceInterface
	SyncTrigger    SyncTriggerInterface
	DigestDispatch DigestDispatcherInterface

	// メトリクス公開
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	tenantHandler := NewTenantHandler(deps.TenantService, deps.SyncTrigger, deps.Logger)
	settingHandler := NewSettingHandler(deps.SettingService)
	syncHandler := NewSyncHandler(deps.SyncTrigger)
	notificationHandler := NewNotificationHandler(deps.DigestDispatch)

	// --- 運用エンドポイント（レート制限の外） ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// テナント管理
		r.Route("/api/tenants", func(r chi.Router) {
			r.Get("/", tenantHandler.ListTenants)
			r.Post("/", tenantHandler.CreateTenant)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tenantHandler.GetTenant)
				r.Put("/", tenantHandler.UpdateTenant)
				r.Delete("/", tenantHandler.DeleteTenant)

				// POST /api/tenants/{id}/sync - 同期の即時実行（トリガー専用レート制限を追加）
				r.With(deps.RateLimiter.TriggerMiddleware()).Post("/sync", syncHandler.TriggerSync)
			})
		})

		// 通知設定管理
		r.Route("/api/notification-settings", func(r chi.Router) {
			r.Get("/", settingHandler.ListSettings)
			r.Post("/", settingHandler.CreateSetting)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", settingHandler.GetSetting)
				r.Put("/", settingHandler.UpdateSetting)
				r.Delete("/", settingHandler.DeleteSetting)
			})
		})

		// 手動通知送信（トリガー専用レート制限を追加）
		r.With(deps.RateLimiter.TriggerMiddleware()).Post("/api/send-notification", notificationHandler.SendNotification)

		// フェッチログ照会
		r.Get("/api/refresh-times", tenantHandler.RefreshTimes)
	})

	return r
}
