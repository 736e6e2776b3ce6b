// Package syncsched はテナントデータ同期のスケジューリングと実行を提供する。
// フェッチログに基づくdue判定、テナント単位の並列制御、カテゴリごとの
// フェッチとアップサートを含む。
package syncsched

import (
	"context"

	"github.com/hitoshi/tenantman/internal/model"
)

// FetchGateway は外部データソースからのカテゴリ別レコード取得インターフェース。
// 実装はgraph.Client。テストではモックに差し替える。
type FetchGateway interface {
	// FetchCategory は指定カテゴリの全レコードをテナントの資格情報で取得する。
	FetchCategory(ctx context.Context, tenant *model.Tenant, category model.Category) ([]model.Record, error)
}
