// Package tenantstore はテナントごとの同期データ（updates / known-issues / news）の
// 物理パーティションを管理する。配置方式は2種類:
//
//   - shared: 共有スキーマ内にテナント名プレフィックス付きテーブルを作成する
//   - schema: テナントごとに独立したPostgreSQLスキーマを作成する
//
// どちらの方式でもカテゴリごとのテーブル構造は同一であり、上位層は
// Storeインターフェースのみに依存する。
package tenantstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/tenantman/internal/config"
	"github.com/hitoshi/tenantman/internal/model"
)

// Store はテナントパーティションの操作インターフェース。
type Store interface {
	// EnsurePartition はテナントの3カテゴリ分のテーブルを冪等に作成する。
	// 一部だけ作成されて残りが失敗した場合はエラーを返す（all-or-nothing）。
	EnsurePartition(ctx context.Context, tenant *model.Tenant) error

	// Upsert はレコード群をIDをキーに挿入または上書き更新し、処理件数を返す。
	// 全レコードは同一カテゴリでなければならない。
	Upsert(ctx context.Context, tenant *model.Tenant, category model.Category, records []model.Record) (int, error)

	// Query はテナント・カテゴリのレコードを新着判定時刻の降順で返す。
	// afterが非nilの場合、RecencyAt > after のレコードのみを返す。
	// RecencyAtがafterと一致するレコードは含まれない。
	Query(ctx context.Context, tenant *model.Tenant, category model.Category, after *time.Time) ([]model.Record, error)

	// DropPartition はテナントの全パーティションを冪等に削除する。
	// 存在しないパーティションの削除は成功として扱う。
	DropPartition(ctx context.Context, tenant *model.Tenant) error

	// PruneOlderThan は新着判定時刻がcutoffより古いレコードを削除し、
	// 削除件数を返す。保持期間ジョブから呼ばれる。
	PruneOlderThan(ctx context.Context, tenant *model.Tenant, category model.Category, cutoff time.Time) (int64, error)

	// PartitionName はテナント・カテゴリに対応する物理テーブルの
	// 完全修飾名を返す。ログと診断用。
	PartitionName(tenant *model.Tenant, category model.Category) string
}

// New は設定されたモードに対応するStoreを生成する。
func New(mode config.TenantStoreMode, db *sql.DB) (Store, error) {
	switch mode {
	case config.StoreModeShared:
		return NewSharedStore(db), nil
	case config.StoreModeSchema:
		return NewSchemaStore(db), nil
	}
	return nil, fmt.Errorf("未知のテナントストアモードです: %q", mode)
}

// NormalizeName はテナント名をSQL識別子として安全な形に正規化する。
// 小文字化したうえで英数字以外をすべてアンダースコアに置換する。
// 異なるテナント名が同じ正規化結果になる可能性があるが、衝突時は
// パーティションを共有する仕様とする。
func NormalizeName(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
