// Package model はドメインモデルを定義する。
package model

import "time"

// Category はテナントごとに同期する3つの固定データ種別を表す。
type Category string

const (
	// CategoryUpdates はメッセージセンターのアナウンスを表す。
	CategoryUpdates Category = "updates"
	// CategoryKnownIssues はWindows既知の問題を表す。
	CategoryKnownIssues Category = "known-issues"
	// CategoryNews はM365ニュースを表す。
	CategoryNews Category = "news"
)

// AllCategories は3カテゴリを固定順で返す。
// スケジューラは常にこの順でフェッチする。
func AllCategories() []Category {
	return []Category{CategoryUpdates, CategoryKnownIssues, CategoryNews}
}

// ParseCategory は文字列をCategoryに変換する。未知の値はfalseを返す。
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryUpdates, CategoryKnownIssues, CategoryNews:
		return Category(s), true
	}
	return "", false
}

// Record は同期済みの1件のレコードを表す。
// 3カテゴリを1つの型で扱い、カテゴリ固有のフィールドは該当カテゴリでのみ
// 値を持つ。RecencyAtはカテゴリごとに意味が異なる唯一の新着判定時刻:
//   - updates:      lastModifiedDateTime
//   - known-issues: startDateTime
//   - news:         publishedDate
//
// IDはテナント+カテゴリ内で一意であり、再同期時はIDをキーに上書き更新される。
type Record struct {
	ID       string
	Category Category
	Title    string
	Body     string // サニタイズ済みHTML（updates）/ 説明文（known-issues）/ サマリー（news）

	// updates固有
	Tag           string // Graphのcategory（"Feature update" 等）
	Severity      string
	IsMajorChange bool

	// known-issues固有
	ProductID   string
	ProductName string
	WebViewURL  string
	Status      string
	ResolvedAt  *time.Time

	// news固有
	Link string
	Tags []string

	RecencyAt time.Time
	FetchedAt time.Time
}
