package tenantstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// SchemaStore はテナントごとに独立したPostgreSQLスキーマを作成する方式の
// Store実装。スキーマ名は tenant_<正規化済みテナント名> となり、その中に
// カテゴリごとのテーブルを置く。
type SchemaStore struct {
	db *sql.DB
}

// NewSchemaStore はSchemaStoreを生成する。
func NewSchemaStore(db *sql.DB) *SchemaStore {
	return &SchemaStore{db: db}
}

// schemaName はテナントのスキーマ名を返す。
func (s *SchemaStore) schemaName(tenant *model.Tenant) string {
	return "tenant_" + NormalizeName(tenant.Name)
}

// PartitionName はテナント・カテゴリに対応するスキーマ修飾テーブル名を返す。
func (s *SchemaStore) PartitionName(tenant *model.Tenant, category model.Category) string {
	return s.schemaName(tenant) + "." + tableBaseNames[category]
}

// EnsurePartition はスキーマと3カテゴリ分のテーブルを1トランザクションで
// 冪等に作成する。
func (s *SchemaStore) EnsurePartition(ctx context.Context, tenant *model.Tenant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("パーティション作成トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	schema := s.schemaName(tenant)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return fmt.Errorf("スキーマの作成に失敗しました (schema=%s): %w", schema, err)
	}

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
func (s *SchemaStore) Upsert(ctx context.Context, tenant *model.Tenant, category model.Category, records []model.Record) (int, error) {
	return upsertRecords(ctx, s.db, s.PartitionName(tenant, category), category, records)
}

// Query はレコードを新着判定時刻の降順で取得する。
func (s *SchemaStore) Query(ctx context.Context, tenant *model.Tenant, category model.Category, after *time.Time) ([]model.Record, error) {
	return queryRecords(ctx, s.db, s.PartitionName(tenant, category), category, after)
}

// DropPartition はスキーマごと冪等に削除する。
func (s *SchemaStore) DropPartition(ctx context.Context, tenant *model.Tenant) error {
	schema := s.schemaName(tenant)
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, schema)); err != nil {
		return fmt.Errorf("スキーマの削除に失敗しました (schema=%s): %w", schema, err)
	}
	return nil
}

// PruneOlderThan は新着判定時刻がcutoffより古いレコードを削除する。
func (s *SchemaStore) PruneOlderThan(ctx context.Context, tenant *model.Tenant, category model.Category, cutoff time.Time) (int64, error) {
	return pruneOlderThan(ctx, s.db, s.PartitionName(tenant, category), category, cutoff)
}
