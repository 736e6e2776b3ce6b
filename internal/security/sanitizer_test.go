package security

import (
	"strings"
	"testing"
)

// TestSanitize_RemovesDangerousContent は危険な要素・属性の除去を検証する。
func TestSanitize_RemovesDangerousContent(t *testing.T) {
	s := NewBodySanitizer()

	tests := []struct {
		name       string
		input      string
		mustKeep   []string
		mustRemove []string
	}{
		{
			name:       "scriptタグを除去する",
			input:      `<p>hello</p><script>alert(1)</script>`,
			mustKeep:   []string{"<p>hello</p>"},
			mustRemove: []string{"<script>", "alert(1)"},
		},
		{
			name:       "iframeタグを除去する",
			input:      `<p>body</p><iframe src="https://evil.example"></iframe>`,
			mustKeep:   []string{"<p>body</p>"},
			mustRemove: []string{"<iframe"},
		},
		{
			name:       "onclickイベント属性を除去する",
			input:      `<p onclick="alert(1)">text</p>`,
			mustKeep:   []string{"text"},
			mustRemove: []string{"onclick"},
		},
		{
			name:       "整形タグは通過させる",
			input:      `<ul><li><strong>bold</strong> and <em>italic</em></li></ul>`,
			mustKeep:   []string{"<ul>", "<li>", "<strong>bold</strong>", "<em>italic</em>"},
			mustRemove: nil,
		},
		{
			name:       "javascriptスキームのリンクを無効化する",
			input:      `<a href="javascript:alert(1)">click</a>`,
			mustKeep:   []string{"click"},
			mustRemove: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, keep := range tt.mustKeep {
				if !strings.Contains(got, keep) {
					t.Errorf("出力に %q が含まれるべき: %q", keep, got)
				}
			}
			for _, remove := range tt.mustRemove {
				if strings.Contains(got, remove) {
					t.Errorf("出力に %q が含まれてはならない: %q", remove, got)
				}
			}
		})
	}
}

// TestSanitize_LinkHardening はhttpsリンクへのtarget/rel強制付与を検証する。
func TestSanitize_LinkHardening(t *testing.T) {
	s := NewBodySanitizer()

	got := s.Sanitize(`<a href="https://example.com/page">link</a>`)

	if !strings.Contains(got, `href="https://example.com/page"`) {
		t.Errorf("httpsリンクが維持されていない: %q", got)
	}
	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("target=_blankが付与されていない: %q", got)
	}
	if !strings.Contains(got, "noreferrer") {
		t.Errorf("rel noreferrerが付与されていない: %q", got)
	}
}

// TestSanitize_Deterministic は同一入力に対して同一出力を返すことを検証する。
func TestSanitize_Deterministic(t *testing.T) {
	s := NewBodySanitizer()
	input := `<p>stable <strong>output</strong></p><script>x</script>`

	first := s.Sanitize(input)
	for i := 0; i < 5; i++ {
		if got := s.Sanitize(input); got != first {
			t.Fatalf("出力が揺れた: %q != %q", got, first)
		}
	}
}
