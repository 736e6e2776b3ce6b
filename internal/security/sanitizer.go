// Package security は外部コンテンツ取り込み時のセキュリティ機能を提供する。
//
// Microsoft Graphのアナウンス本文とRSSフィードのサマリーはHTMLを含むため、
// 保存前にbluemondayの許可リストベースのポリシーでサニタイズする。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// BodySanitizer はアナウンス本文のサニタイズ機能のインターフェース。
// 同期パイプラインがレコード保存前に使用する。
type BodySanitizer interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 基本的な整形タグのみを通過させ、script / iframe / style タグおよび
	// on*イベント属性を除去する。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

type bodySanitizer struct {
	policy *bluemonday.Policy
}

// NewBodySanitizer はBodySanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, b, i
//   - aタグ: href属性のみ許可し、target="_blank" と rel="noopener noreferrer" を強制付与
//   - スキームはhttpsのみ許可
func NewBodySanitizer() *bodySanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &bodySanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *bodySanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
