package notify

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// maxExcerptLen はメール内に表示する本文抜粋の最大文字数。
const maxExcerptLen = 280

// Excerpt はHTML本文からタグを除去した平文の抜粋を返す。
// メッセージセンターのアナウンス本文は長大になりがちなため、
// ダイジェストには冒頭のみを表示する。
func Excerpt(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.TextToken {
			continue
		}
		text := strings.TrimSpace(string(tokenizer.Text()))
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		if utf8.RuneCountInString(b.String()) > maxExcerptLen {
			break
		}
	}

	excerpt := b.String()
	if utf8.RuneCountInString(excerpt) > maxExcerptLen {
		runes := []rune(excerpt)
		excerpt = string(runes[:maxExcerptLen]) + "…"
	}
	return excerpt
}
