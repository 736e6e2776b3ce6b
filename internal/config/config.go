package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TenantStoreMode はテナントパーティションの物理配置方式を表す。
type TenantStoreMode string

const (
	// StoreModeShared は共有スキーマ内にテナント名プレフィックス付き
	// テーブルを作成する方式。
	StoreModeShared TenantStoreMode = "shared"
	// StoreModeSchema はテナントごとに独立したスキーマを作成する方式。
	StoreModeSchema TenantStoreMode = "schema"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL     string
	TenantStoreMode TenantStoreMode

	// Sync
	SyncTickInterval  time.Duration
	SyncMaxConcurrent int
	FetchTimeout      time.Duration

	// Microsoft Graph / 外部API
	GraphBaseURL    string
	LoginBaseURL    string
	GraphRatePerSec float64
	NewsFeedURL     string

	// 通知メール（Graph sendMail用の送信サービスアカウント）
	MailFromAddress  string
	MailDirectoryID  string
	MailClientID     string
	MailClientSecret string

	// 配信スケジュール
	DispatchHour  int
	RetentionDays int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitTrigger int

	// Server
	ServerPort        string
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	mode := TenantStoreMode(getEnvString("TENANT_STORE_MODE", string(StoreModeShared)))
	if mode != StoreModeShared && mode != StoreModeSchema {
		return nil, fmt.Errorf("invalid TENANT_STORE_MODE: %q (must be %q or %q)",
			mode, StoreModeShared, StoreModeSchema)
	}
	cfg.TenantStoreMode = mode

	// Optional fields with defaults
	cfg.SyncTickInterval = getEnvDuration("SYNC_TICK_INTERVAL", 30*time.Minute)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 120*time.Second)

	cfg.GraphBaseURL = getEnvString("GRAPH_BASE_URL", "https://graph.microsoft.com/beta")
	cfg.LoginBaseURL = getEnvString("LOGIN_BASE_URL", "https://login.microsoftonline.com")
	cfg.GraphRatePerSec = getEnvFloat("GRAPH_RATE_PER_SEC", 4)
	cfg.NewsFeedURL = getEnvString("NEWS_FEED_URL",
		"https://www.microsoft.com/releasecommunications/api/v2/m365/rss")

	cfg.MailFromAddress = getEnvString("MAIL_FROM_ADDRESS", "")
	cfg.MailDirectoryID = getEnvString("MAIL_DIRECTORY_ID", "")
	cfg.MailClientID = getEnvString("MAIL_CLIENT_ID", "")
	cfg.MailClientSecret = getEnvString("MAIL_CLIENT_SECRET", "")

	cfg.DispatchHour = getEnvInt("DISPATCH_HOUR", 9)
	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 180)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTrigger = getEnvInt("RATE_LIMIT_TRIGGER", 10)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// MailConfigured は通知メール送信に必要な設定が揃っているかを返す。
func (c *Config) MailConfigured() bool {
	return c.MailFromAddress != "" && c.MailDirectoryID != "" &&
		c.MailClientID != "" && c.MailClientSecret != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
