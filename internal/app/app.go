// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tenantman/internal/config"
	"github.com/hitoshi/tenantman/internal/database"
	"github.com/hitoshi/tenantman/internal/graph"
	"github.com/hitoshi/tenantman/internal/handler"
	"github.com/hitoshi/tenantman/internal/logger"
	"github.com/hitoshi/tenantman/internal/metrics"
	"github.com/hitoshi/tenantman/internal/middleware"
	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/notify"
	"github.com/hitoshi/tenantman/internal/repository"
	"github.com/hitoshi/tenantman/internal/security"
	"github.com/hitoshi/tenantman/internal/setting"
	"github.com/hitoshi/tenantman/internal/tenant"
	"github.com/hitoshi/tenantman/internal/tenantstore"
	"github.com/hitoshi/tenantman/internal/worker/cleanup"
	"github.com/hitoshi/tenantman/internal/worker/syncsched"
)

// graphMailBaseURL はsendMailエンドポイントのベースURL。
// データ取得側（beta）と異なり、メール送信はv1.0を使用する。
const graphMailBaseURL = "https://graph.microsoft.com/v1.0"

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルの読み込み（存在しない場合は無視する）
	if err := godotenv.Load(); err == nil {
		slog.Info(".envファイルを読み込みました")
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_mode", string(cfg.TenantStoreMode)),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// deps はserve/workerで共有する依存関係一式。
type deps struct {
	tenantRepo  *repository.PostgresTenantRepo
	settingRepo *repository.PostgresSettingRepo
	fetchLog    *repository.PostgresFetchLogRepo
	store       tenantstore.Store
	collector   *metrics.Collector
	registry    *prometheus.Registry
	scheduler   *syncsched.Scheduler
	dispatcher  *notify.Dispatcher
}

// buildDeps はDB接続から依存関係一式をワイヤリングする。
func buildDeps(cfg *config.Config, db *sql.DB) (*deps, error) {
	// 1. リポジトリの初期化
	tenantRepo := repository.NewPostgresTenantRepo(db)
	settingRepo := repository.NewPostgresSettingRepo(db)
	fetchLogRepo := repository.NewPostgresFetchLogRepo(db)

	// 2. テナントストアの初期化
	store, err := tenantstore.New(cfg.TenantStoreMode, db)
	if err != nil {
		return nil, err
	}

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービスの初期化
	feedGuard := security.NewFeedGuard()
	sanitizer := security.NewBodySanitizer()

	// 5. Graphクライアントの初期化
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	tokens := graph.NewTokenProvider(httpClient, cfg.LoginBaseURL)
	newsFetcher := graph.NewRSSNewsFetcher(
		feedGuard.NewSafeClient(cfg.FetchTimeout),
		feedGuard, sanitizer, cfg.NewsFeedURL, slog.Default(),
	)
	gateway := graph.NewClient(
		httpClient, tokens, newsFetcher, sanitizer,
		cfg.GraphBaseURL, cfg.GraphRatePerSec, slog.Default(),
	)

	// 6. 同期スケジューラの初期化
	scheduler := syncsched.NewScheduler(
		tenantRepo, fetchLogRepo, store, gateway,
		collector, slog.Default(), cfg.SyncMaxConcurrent,
	)

	// 7. 通知パイプラインの初期化
	aggregator := notify.NewAggregator(tenantRepo, store, slog.Default())
	renderer, err := notify.NewHTMLRenderer()
	if err != nil {
		return nil, err
	}

	var sender notify.Sender
	if cfg.MailConfigured() {
		sender = graph.NewGraphMailer(
			httpClient, tokens, graphMailBaseURL,
			cfg.MailFromAddress, cfg.MailDirectoryID,
			cfg.MailClientID, cfg.MailClientSecret,
			slog.Default(),
		)
	} else {
		slog.Warn("メール送信設定が未構成のため、通知送信は失敗します")
		sender = disabledSender{}
	}

	dispatcher := notify.NewDispatcher(
		settingRepo, tenantRepo, aggregator, renderer, sender,
		collector, slog.Default(),
	)

	return &deps{
		tenantRepo:  tenantRepo,
		settingRepo: settingRepo,
		fetchLog:    fetchLogRepo,
		store:       store,
		collector:   collector,
		registry:    registry,
		scheduler:   scheduler,
		dispatcher:  dispatcher,
	}, nil
}

// disabledSender はメール送信設定が未構成の場合のSender実装。
type disabledSender struct{}

func (disabledSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	return model.NewRenderOrSendFailedError("メール送信が設定されていません")
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	d, err := buildDeps(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	// 2. サービス層の初期化
	tenantService := tenant.NewService(d.tenantRepo, d.fetchLog, d.store, slog.Default())
	settingService := setting.NewService(d.settingRepo, d.tenantRepo, slog.Default())

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitTrigger),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		TenantService:  tenantService,
		SettingService: settingService,
		SyncTrigger:    d.scheduler,
		DigestDispatch: d.dispatcher,

		MetricsGatherer: d.registry,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 同期スケジューラ、保持期間クリーンアップ、スケジュール配信ループを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	d, err := buildDeps(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(d.tenantRepo, d.store, slog.Default())
	cleanupJob.RetentionDays = cfg.RetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_tick_interval", cfg.SyncTickInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
		slog.Int("dispatch_hour", cfg.DispatchHour),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// スケジュール配信ループを1時間間隔でバックグラウンド実行
	go runDispatchLoop(ctx, d.dispatcher, cfg.DispatchHour)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	d.scheduler.Start(ctx, cfg.SyncTickInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runDispatchLoop は1時間間隔で配信タイミングを判定し、該当する頻度の
// ダイジェストを配信する。ティッカーは1時間につき1回しか発火しないため、
// 同一時間帯での二重配信は起こらない。
func runDispatchLoop(ctx context.Context, dispatcher *notify.Dispatcher, dispatchHour int) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, freq := range []model.Frequency{
				model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly,
			} {
				if !notify.ShouldDispatchAt(freq, now, dispatchHour) {
					continue
				}
				if err := dispatcher.DispatchDue(ctx, freq); err != nil {
					slog.Error("scheduled dispatch failed",
						slog.String("frequency", string(freq)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
