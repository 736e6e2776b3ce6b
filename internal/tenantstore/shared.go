package tenantstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// SharedStore は共有スキーマ内にテナント名プレフィックス付きテーブルを
// 作成する方式のStore実装。テーブル名は
// <正規化済みテナント名>_m365_<カテゴリ> となる。
type SharedStore struct {
	db *sql.DB
}

// NewSharedStore はSharedStoreを生成する。
func NewSharedStore(db *sql.DB) *SharedStore {
	return &SharedStore{db: db}
}

// tablePrefix はテナントのテーブル名プレフィックスを返す。
func (s *SharedStore) tablePrefix(tenant *model.Tenant) string {
	return NormalizeName(tenant.Name) + "_m365_"
}

// PartitionName はテナント・カテゴリに対応するテーブル名を返す。
func (s *SharedStore) PartitionName(tenant *model.Tenant, category model.Category) string {
	return s.tablePrefix(tenant) + tableBaseNames[category]
}

// EnsurePartition は3カテゴリ分のテーブルを1トランザクションで冪等に作成する。
func (s *SharedStore) EnsurePartition(ctx context.Context, tenant *model.Tenant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("パーティション作成トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, category := range model.AllCategories() {
		table := s.PartitionName(tenant, category)
		if _, err := tx.ExecContext(ctx, createTableSQL(table, category)); err != nil {
			return fmt.Errorf("テーブルの作成に失敗しました (table=%s): %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("パーティション作成のコミットに失敗しました: %w", err)
	}
	return nil
}

// Upsert はレコード群をIDをキーにUPSERTする。
func (s *SharedStore) Upsert(ctx context.Context, tenant *model.Tenant, category model.Category, records []model.Record) (int, error) {
	return upsertRecords(ctx, s.db, s.PartitionName(tenant, category), category, records)
}

// Query はレコードを新着判定時刻の降順で取得する。
func (s *SharedStore) Query(ctx context.Context, tenant *model.Tenant, category model.Category, after *time.Time) ([]model.Record, error) {
	return queryRecords(ctx, s.db, s.PartitionName(tenant, category), category, after)
}

// DropPartition は3カテゴリ分のテーブルを冪等に削除する。
func (s *SharedStore) DropPartition(ctx context.Context, tenant *model.Tenant) error {
	for _, category := range model.AllCategories() {
		table := s.PartitionName(tenant, category)
		if _, err := s.db.ExecContext(ctx, dropTableSQL(table)); err != nil {
			return fmt.Errorf("テーブルの削除に失敗しました (table=%s): %w", table, err)
		}
	}
	return nil
}

// PruneOlderThan は新着判定時刻がcutoffより古いレコードを削除する。
func (s *SharedStore) PruneOlderThan(ctx context.Context, tenant *model.Tenant, category model.Category, cutoff time.Time) (int64, error) {
	return pruneOlderThan(ctx, s.db, s.PartitionName(tenant, category), category, cutoff)
}
