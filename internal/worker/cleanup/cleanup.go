// Package cleanup は同期済みレコードの自動削除ジョブを提供する。
// 保持期間（デフォルト180日）を超過したレコードを全テナント・全カテゴリに
// わたって日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/repository"
	"github.com/hitoshi/tenantman/internal/tenantstore"
)

// CleanupJob は保持期間を超過したレコードの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// テナント単位で失敗を隔離し、1テナントの失敗が他のテナントの削除を妨げない。
type CleanupJob struct {
	tenantRepo    repository.TenantRepository
	store         tenantstore.Store
	logger        *slog.Logger
	RetentionDays int // レコードの保持日数（デフォルト: 180）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は180日。
func NewCleanupJob(tenantRepo repository.TenantRepository, store tenantstore.Store, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		tenantRepo:    tenantRepo,
		store:         store,
		logger:        logger,
		RetentionDays: 180,
	}
}

// Run は全テナントの保持期間超過レコードを削除する。
// 新着判定時刻がRetentionDays日前より古いレコードが対象。
// パーティション未作成のテナントでの削除失敗はログに残して続行する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	tenants, err := j.tenantRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("テナント一覧の取得に失敗: %w", err)
	}

	var totalDeleted int64
	for _, tenant := range tenants {
		for _, category := range model.AllCategories() {
			deleted, err := j.store.PruneOlderThan(ctx, tenant, category, cutoff)
			if err != nil {
				j.logger.Error("レコードクリーンアップに失敗しました",
					slog.String("tenant_id", tenant.ID),
					slog.String("category", string(category)),
					slog.String("error", err.Error()),
				)
				continue
			}
			totalDeleted += deleted
		}
	}

	duration := time.Since(start)
	j.logger.Info("レコードクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Int("tenant_count", len(tenants)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
