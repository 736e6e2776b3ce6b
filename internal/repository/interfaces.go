// Package repository はコントロールプレーンデータの永続化インターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// TenantRepository はテナントレジストリの永続化インターフェース。
type TenantRepository interface {
	// List は全テナントを取得する。
	List(ctx context.Context) ([]*model.Tenant, error)

	// FindByID は指定IDのテナントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Tenant, error)

	// ListActiveAutoFetch はis_activeかつauto_fetch_enabledのテナントを取得する。
	// スケジューラのティックごとに呼ばれる。エラー時、呼び出し側はそのサイクルを
	// スキップする（プロセスを停止しない）。
	ListActiveAutoFetch(ctx context.Context) ([]*model.Tenant, error)

	// Create はテナントを作成する。
	Create(ctx context.Context, tenant *model.Tenant) error

	// Update はテナント情報を更新する。
	Update(ctx context.Context, tenant *model.Tenant) error

	// DeleteByID は指定IDのテナントを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// SettingRepository は通知購読設定の永続化インターフェース。
// 配信パイプラインからは読み取り専用で使用される。
type SettingRepository interface {
	// List は全通知設定を取得する。
	List(ctx context.Context) ([]*model.NotificationSetting, error)

	// ListByFrequency は指定頻度の通知設定を取得する。
	ListByFrequency(ctx context.Context, freq model.Frequency) ([]*model.NotificationSetting, error)

	// FindByID は指定IDの通知設定を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.NotificationSetting, error)

	// Create は通知設定を作成する。
	Create(ctx context.Context, setting *model.NotificationSetting) error

	// Update は通知設定を更新する。
	Update(ctx context.Context, setting *model.NotificationSetting) error

	// DeleteByID は指定IDの通知設定を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// FetchLogRepository はフェッチログの永続化インターフェース。
// 書き込みはスケジューラのみが行う。
type FetchLogRepository interface {
	// Find は(テナント, データ種別)のエントリを取得する。
	// 存在しない場合はnilを返す（＝未フェッチ、即時due扱い）。
	Find(ctx context.Context, tenantID, dataType string) (*model.FetchLogEntry, error)

	// Record は(テナント, データ種別)の最終フェッチ時刻を冪等にUPSERTする。
	// キーペアの一意性はデータベース制約で保証される。
	Record(ctx context.Context, tenantID, dataType string, at time.Time, status string) error

	// ListByTenant は指定テナントの全エントリをlast_fetch_time降順で返す。
	// 運用向けのrefresh-times照会に使用する。
	ListByTenant(ctx context.Context, tenantID string) ([]model.FetchLogEntry, error)

	// DeleteByTenant は指定テナントの全エントリを削除する。テナント削除時に使用する。
	DeleteByTenant(ctx context.Context, tenantID string) error
}
