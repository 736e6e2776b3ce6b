package notify

import (
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/hitoshi/tenantman/internal/model"
)

// Renderer はダイジェストのメール描画インターフェース。
type Renderer interface {
	// Render はダイジェストから件名とHTML本文を生成する。
	// tenantNamesはテナントID→表示名のマップ。
	Render(digest *model.Digest, tenantNames map[string]string) (subject, htmlBody string, err error)
}

// カテゴリの表示名。メール内のセクション見出しに使用する。
var categoryTitles = map[model.Category]string{
	model.CategoryUpdates:     "Message Center Updates",
	model.CategoryKnownIssues: "Windows Known Issues",
	model.CategoryNews:        "Microsoft 365 News",
}

// HTMLRenderer はhtml/templateによるRenderer実装。
// レコード本文は長くなりがちなため、タグを除去した冒頭の抜粋のみを表示する。
type HTMLRenderer struct {
	tmpl *template.Template
}

// digestView はテンプレートに渡すビューモデル。
type digestView struct {
	SettingName string
	Frequency   string
	Sections    []sectionView
}

type sectionView struct {
	Title   string
	Tenants []tenantSectionView
}

type tenantSectionView struct {
	TenantName string
	Records    []recordView
}

type recordView struct {
	Title    string
	Date     string
	Severity string
	Status   string
	Link     string
	Excerpt  string
}

const digestTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; color: #323130; max-width: 720px; margin: 0 auto;">
<h1 style="font-size: 20px; border-bottom: 2px solid #0078d4; padding-bottom: 8px;">Microsoft 365 {{.Frequency}} Update Summary</h1>
<p>Subscription: {{.SettingName}}</p>
{{range .Sections}}
<h2 style="font-size: 16px; color: #0078d4;">{{.Title}}</h2>
{{range .Tenants}}
<h3 style="font-size: 14px;">{{.TenantName}}</h3>
{{if .Records}}
{{range .Records}}
<div style="border: 1px solid #edebe9; border-radius: 4px; padding: 10px; margin-bottom: 8px;">
<strong>{{if .Link}}<a href="{{.Link}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</strong>
<div style="font-size: 12px; color: #605e5c;">
{{.Date}}{{if .Severity}} / {{.Severity}}{{end}}{{if .Status}} / {{.Status}}{{end}}
</div>
{{if .Excerpt}}<div style="font-size: 13px; margin-top: 6px;">{{.Excerpt}}</div>{{end}}
</div>
{{end}}
{{else}}
<p style="font-size: 13px; color: #605e5c;">No updates in this period.</p>
{{end}}
{{end}}
{{end}}
</body>
</html>`

// NewHTMLRenderer はHTMLRendererの新しいインスタンスを生成する。
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.New("digest").Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("ダイジェストテンプレートのパースに失敗しました: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// Render はダイジェストから件名とHTML本文を生成する。
// セクションはカテゴリの固定順、テナントは表示名の辞書順で並べる。
func (r *HTMLRenderer) Render(digest *model.Digest, tenantNames map[string]string) (string, string, error) {
	view := digestView{
		SettingName: digest.Setting.Name,
		Frequency:   string(digest.Setting.Frequency),
	}

	for _, category := range model.AllCategories() {
		tenants, ok := digest.Sections[category]
		if !ok {
			continue
		}

		section := sectionView{Title: categoryTitles[category]}

		tenantIDs := make([]string, 0, len(tenants))
		for tenantID := range tenants {
			tenantIDs = append(tenantIDs, tenantID)
		}
		sort.Slice(tenantIDs, func(i, j int) bool {
			return displayName(tenantNames, tenantIDs[i]) < displayName(tenantNames, tenantIDs[j])
		})

		for _, tenantID := range tenantIDs {
			tenantSection := tenantSectionView{
				TenantName: displayName(tenantNames, tenantID),
			}
			for _, record := range tenants[tenantID] {
				tenantSection.Records = append(tenantSection.Records, recordView{
					Title:    record.Title,
					Date:     record.RecencyAt.Format("2006-01-02"),
					Severity: record.Severity,
					Status:   record.Status,
					Link:     recordLink(&record),
					Excerpt:  Excerpt(record.Body),
				})
			}
			section.Tenants = append(section.Tenants, tenantSection)
		}

		view.Sections = append(view.Sections, section)
	}

	var b strings.Builder
	if err := r.tmpl.Execute(&b, view); err != nil {
		return "", "", fmt.Errorf("ダイジェストの描画に失敗しました: %w", err)
	}

	subject := fmt.Sprintf("Microsoft 365 %s Update Summary", digest.Setting.Frequency)
	return subject, b.String(), nil
}

func displayName(tenantNames map[string]string, tenantID string) string {
	if name, ok := tenantNames[tenantID]; ok && name != "" {
		return name
	}
	return tenantID
}

func recordLink(r *model.Record) string {
	if r.Link != "" {
		return r.Link
	}
	return r.WebViewURL
}
