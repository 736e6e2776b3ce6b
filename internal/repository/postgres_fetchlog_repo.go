package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// PostgresFetchLogRepo はPostgreSQLを使用したフェッチログリポジトリ。
type PostgresFetchLogRepo struct {
	db *sql.DB
}

// NewPostgresFetchLogRepo はPostgresFetchLogRepoを生成する。
func NewPostgresFetchLogRepo(db *sql.DB) *PostgresFetchLogRepo {
	return &PostgresFetchLogRepo{db: db}
}

// Find は(テナント, データ種別)のエントリを取得する。存在しない場合はnilを返す。
func (r *PostgresFetchLogRepo) Find(ctx context.Context, tenantID, dataType string) (*model.FetchLogEntry, error) {
	entry := &model.FetchLogEntry{}

	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, data_type, last_fetch_time, status
		 FROM fetch_log WHERE tenant_id = $1 AND data_type = $2`,
		tenantID, dataType,
	).Scan(&entry.TenantID, &entry.DataType, &entry.LastFetchTime, &entry.Status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フェッチログの取得に失敗しました: %w", err)
	}
	return entry, nil
}

// Record は(テナント, データ種別)の最終フェッチ時刻を冪等にUPSERTする。
func (r *PostgresFetchLogRepo) Record(ctx context.Context, tenantID, dataType string, at time.Time, status string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fetch_log (tenant_id, data_type, last_fetch_time, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, data_type)
		 DO UPDATE SET last_fetch_time = EXCLUDED.last_fetch_time, status = EXCLUDED.status`,
		tenantID, dataType, at, status,
	)
	if err != nil {
		return fmt.Errorf("フェッチログの記録に失敗しました: %w", err)
	}
	return nil
}

// ListByTenant は指定テナントの全エントリをlast_fetch_time降順で返す。
func (r *PostgresFetchLogRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.FetchLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id, data_type, last_fetch_time, status
		 FROM fetch_log WHERE tenant_id = $1
		 ORDER BY last_fetch_time DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("フェッチログ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.FetchLogEntry
	for rows.Next() {
		var entry model.FetchLogEntry
		if err := rows.Scan(&entry.TenantID, &entry.DataType, &entry.LastFetchTime, &entry.Status); err != nil {
			return nil, fmt.Errorf("フェッチログ行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチログ一覧の走査に失敗しました: %w", err)
	}

	return entries, nil
}

// DeleteByTenant は指定テナントの全エントリを削除する。
func (r *PostgresFetchLogRepo) DeleteByTenant(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM fetch_log WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("フェッチログの削除に失敗しました: %w", err)
	}
	return nil
}
