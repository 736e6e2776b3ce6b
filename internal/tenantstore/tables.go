package tenantstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// カテゴリごとの物理テーブルのベース名。
var tableBaseNames = map[model.Category]string{
	model.CategoryUpdates:     "updates",
	model.CategoryKnownIssues: "known_issues",
	model.CategoryNews:        "news",
}

// createTableSQL はカテゴリに対応するCREATE TABLE文を返す。
// tableは完全修飾済みの識別子（呼び出し側で正規化済み）であること。
func createTableSQL(table string, category model.Category) string {
	switch category {
	case model.CategoryUpdates:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			is_major_change BOOLEAN NOT NULL DEFAULT FALSE,
			body_content TEXT NOT NULL DEFAULT '',
			last_modified_at TIMESTAMPTZ NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL
		)`, table)
	case model.CategoryKnownIssues:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL DEFAULT '',
			product_name TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			web_view_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			start_date TIMESTAMPTZ NOT NULL,
			resolved_date TIMESTAMPTZ,
			fetched_at TIMESTAMPTZ NOT NULL
		)`, table)
	case model.CategoryNews:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			categories JSONB NOT NULL DEFAULT '[]',
			published_at TIMESTAMPTZ NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL
		)`, table)
	}
	return ""
}

// dropTableSQL は存在確認付きのDROP TABLE文を返す。
func dropTableSQL(table string) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)
}

// recencyColumn はカテゴリごとの新着判定時刻カラム名を返す。
func recencyColumn(category model.Category) string {
	switch category {
	case model.CategoryUpdates:
		return "last_modified_at"
	case model.CategoryKnownIssues:
		return "start_date"
	case model.CategoryNews:
		return "published_at"
	}
	return ""
}

// upsertRecords はレコード群をIDをキーにUPSERTし、処理件数を返す。
// 1件ずつ実行するが、全体を1トランザクションにまとめて途中失敗時の
// 部分書き込みを防ぐ。
func upsertRecords(ctx context.Context, db *sql.DB, table string, category model.Category, records []model.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	query := upsertSQL(table, category)
	count := 0
	for i := range records {
		args, err := upsertArgs(&records[i], category)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("レコードの書き込みに失敗しました (id=%s): %w", records[i].ID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return count, nil
}

func upsertSQL(table string, category model.Category) string {
	switch category {
	case model.CategoryUpdates:
		return fmt.Sprintf(`INSERT INTO %s
			(id, title, category, severity, is_major_change, body_content, last_modified_at, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				category = EXCLUDED.category,
				severity = EXCLUDED.severity,
				is_major_change = EXCLUDED.is_major_change,
				body_content = EXCLUDED.body_content,
				last_modified_at = EXCLUDED.last_modified_at,
				fetched_at = EXCLUDED.fetched_at`, table)
	case model.CategoryKnownIssues:
		return fmt.Sprintf(`INSERT INTO %s
			(id, product_id, product_name, title, description, web_view_url, status, start_date, resolved_date, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				product_id = EXCLUDED.product_id,
				product_name = EXCLUDED.product_name,
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				web_view_url = EXCLUDED.web_view_url,
				status = EXCLUDED.status,
				start_date = EXCLUDED.start_date,
				resolved_date = EXCLUDED.resolved_date,
				fetched_at = EXCLUDED.fetched_at`, table)
	case model.CategoryNews:
		return fmt.Sprintf(`INSERT INTO %s
			(id, title, link, summary, categories, published_at, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				link = EXCLUDED.link,
				summary = EXCLUDED.summary,
				categories = EXCLUDED.categories,
				published_at = EXCLUDED.published_at,
				fetched_at = EXCLUDED.fetched_at`, table)
	}
	return ""
}

func upsertArgs(r *model.Record, category model.Category) ([]any, error) {
	switch category {
	case model.CategoryUpdates:
		return []any{
			r.ID, r.Title, r.Tag, r.Severity, r.IsMajorChange,
			r.Body, r.RecencyAt, r.FetchedAt,
		}, nil
	case model.CategoryKnownIssues:
		return []any{
			r.ID, r.ProductID, r.ProductName, r.Title, r.Body,
			r.WebViewURL, r.Status, r.RecencyAt, r.ResolvedAt, r.FetchedAt,
		}, nil
	case model.CategoryNews:
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("ニュースカテゴリタグのエンコードに失敗しました: %w", err)
		}
		return []any{
			r.ID, r.Title, r.Link, r.Body, tagsJSON, r.RecencyAt, r.FetchedAt,
		}, nil
	}
	return nil, fmt.Errorf("未知のカテゴリです: %q", category)
}

// querySQL は取得クエリのSQL文を組み立てる。afterFilterがtrueの場合、
// 新着判定時刻が厳密にafterより新しい行に絞るWHERE句を付ける。
// 境界ちょうどの行は時間窓の外として扱う。
func querySQL(table string, category model.Category, afterFilter bool) string {
	query := fmt.Sprintf(`SELECT %s FROM %s`, selectColumns(category), table)
	if afterFilter {
		query += fmt.Sprintf(` WHERE %s > $1`, recencyColumn(category))
	}
	query += fmt.Sprintf(` ORDER BY %s DESC`, recencyColumn(category))
	return query
}

// queryRecords はテーブルのレコードを新着判定時刻の降順で取得する。
// afterが非nilの場合、新着判定時刻 > after の行に絞り込む。
func queryRecords(ctx context.Context, db *sql.DB, table string, category model.Category, after *time.Time) ([]model.Record, error) {
	var args []any
	if after != nil {
		args = append(args, *after)
	}

	rows, err := db.QueryContext(ctx, querySQL(table, category, after != nil), args...)
	if err != nil {
		return nil, fmt.Errorf("レコードの取得に失敗しました (table=%s): %w", table, err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		record, err := scanRecord(rows, category)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レコードの走査に失敗しました (table=%s): %w", table, err)
	}

	return records, nil
}

func selectColumns(category model.Category) string {
	switch category {
	case model.CategoryUpdates:
		return "id, title, category, severity, is_major_change, body_content, last_modified_at, fetched_at"
	case model.CategoryKnownIssues:
		return "id, product_id, product_name, title, description, web_view_url, status, start_date, resolved_date, fetched_at"
	case model.CategoryNews:
		return "id, title, link, summary, categories, published_at, fetched_at"
	}
	return ""
}

func scanRecord(rows *sql.Rows, category model.Category) (model.Record, error) {
	record := model.Record{Category: category}

	switch category {
	case model.CategoryUpdates:
		if err := rows.Scan(
			&record.ID, &record.Title, &record.Tag, &record.Severity,
			&record.IsMajorChange, &record.Body, &record.RecencyAt, &record.FetchedAt,
		); err != nil {
			return model.Record{}, fmt.Errorf("アップデート行の読み取りに失敗しました: %w", err)
		}
	case model.CategoryKnownIssues:
		if err := rows.Scan(
			&record.ID, &record.ProductID, &record.ProductName, &record.Title,
			&record.Body, &record.WebViewURL, &record.Status,
			&record.RecencyAt, &record.ResolvedAt, &record.FetchedAt,
		); err != nil {
			return model.Record{}, fmt.Errorf("既知の問題行の読み取りに失敗しました: %w", err)
		}
	case model.CategoryNews:
		var tagsJSON []byte
		if err := rows.Scan(
			&record.ID, &record.Title, &record.Link, &record.Body,
			&tagsJSON, &record.RecencyAt, &record.FetchedAt,
		); err != nil {
			return model.Record{}, fmt.Errorf("ニュース行の読み取りに失敗しました: %w", err)
		}
		if err := json.Unmarshal(tagsJSON, &record.Tags); err != nil {
			return model.Record{}, fmt.Errorf("ニュースカテゴリタグのデコードに失敗しました: %w", err)
		}
	}

	return record, nil
}

// pruneOlderThan は新着判定時刻がcutoffより古い行を削除し、削除件数を返す。
func pruneOlderThan(ctx context.Context, db *sql.DB, table string, category model.Category, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, table, recencyColumn(category)),
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("古いレコードの削除に失敗しました (table=%s): %w", table, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました (table=%s): %w", table, err)
	}
	return deleted, nil
}
