package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/repository"
	"github.com/hitoshi/tenantman/internal/tenantstore"
)

// BuildOptions はダイジェスト組み立てのオプション。
type BuildOptions struct {
	// ExactBoundary がtrueの場合、時間窓の下限を日の0時まで切り捨てる。
	ExactBoundary bool

	// CheckPeriod がfalseの場合、設定の頻度にかかわらずWeekly相当の
	// 時間窓（7日）を使用する。手動送信APIのプレビュー用途。
	CheckPeriod bool
}

// Aggregator は通知設定に基づいてダイジェストを組み立てる。
// 設定の対象テナント×有効カテゴリの全組み合わせについて時間窓内の
// レコードを収集し、0件の組み合わせも空エントリとして保持する。
type Aggregator struct {
	tenantRepo repository.TenantRepository
	store      tenantstore.Store
	logger     *slog.Logger

	// テストで時刻を固定するためのフック
	now func() time.Time
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(tenantRepo repository.TenantRepository, store tenantstore.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		tenantRepo: tenantRepo,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Build は設定のダイジェストを組み立てる。
// テナント/カテゴリ単位の取得失敗は隔離し、ログに残して残りを続行する。
// 存在しないテナントIDはスキップする（設定とテナントの削除タイミングの
// ずれで起こりうる）。
func (a *Aggregator) Build(ctx context.Context, setting *model.NotificationSetting, opts BuildOptions) (*model.Digest, error) {
	freq := setting.Frequency
	if !opts.CheckPeriod {
		freq = model.FrequencyWeekly
	}
	cutoff := Cutoff(freq, opts.ExactBoundary, a.now())

	digest := model.NewDigest(*setting)

	for _, tenantID := range setting.TenantIDs {
		tenant, err := a.tenantRepo.FindByID(ctx, tenantID)
		if err != nil {
			a.logger.Error("ダイジェスト用テナントの取得に失敗しました",
				slog.String("setting_id", setting.ID),
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if tenant == nil {
			a.logger.Warn("通知設定が存在しないテナントを参照しています",
				slog.String("setting_id", setting.ID),
				slog.String("tenant_id", tenantID),
			)
			continue
		}

		for _, category := range model.AllCategories() {
			if !setting.HasCategory(category) {
				continue
			}

			records, err := a.store.Query(ctx, tenant, category, &cutoff)
			if err != nil {
				a.logger.Error("ダイジェスト用レコードの取得に失敗しました",
					slog.String("setting_id", setting.ID),
					slog.String("tenant_id", tenantID),
					slog.String("category", string(category)),
					slog.String("error", err.Error()),
				)
				continue
			}

			digest.Add(category, tenantID, records)
		}
	}

	return digest, nil
}
