package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tenantman/internal/model"
)

// PostgresTenantRepo はPostgreSQLを使用したテナントリポジトリ。
type PostgresTenantRepo struct {
	db *sql.DB
}

// NewPostgresTenantRepo はPostgresTenantRepoを生成する。
func NewPostgresTenantRepo(db *sql.DB) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: db}
}

const tenantColumns = `id, name, directory_id, application_id, application_secret,
	        is_active, auto_fetch_enabled, schedule_value, schedule_unit, date_added`

// List は全テナントをdate_added昇順で取得する。
func (r *PostgresTenantRepo) List(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY date_added`)
	if err != nil {
		return nil, fmt.Errorf("テナント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanTenants(rows)
}

// FindByID は指定IDのテナントを取得する。見つからない場合はnilを返す。
func (r *PostgresTenantRepo) FindByID(ctx context.Context, id string) (*model.Tenant, error) {
	tenant := &model.Tenant{}
	var unit string

	err := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`,
		id,
	).Scan(
		&tenant.ID, &tenant.Name, &tenant.DirectoryID,
		&tenant.ApplicationID, &tenant.ApplicationSecret,
		&tenant.IsActive, &tenant.AutoFetchEnabled,
		&tenant.ScheduleValue, &unit, &tenant.DateAdded,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("テナントの取得に失敗しました: %w", err)
	}

	tenant.ScheduleUnit = model.ScheduleUnit(unit)
	return tenant, nil
}

// ListActiveAutoFetch はis_activeかつauto_fetch_enabledのテナントを取得する。
func (r *PostgresTenantRepo) ListActiveAutoFetch(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE is_active = TRUE AND auto_fetch_enabled = TRUE
		 ORDER BY date_added`)
	if err != nil {
		return nil, fmt.Errorf("自動フェッチ対象テナントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanTenants(rows)
}

// Create はテナントを作成する。
func (r *PostgresTenantRepo) Create(ctx context.Context, tenant *model.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, directory_id, application_id, application_secret,
		                      is_active, auto_fetch_enabled, schedule_value, schedule_unit, date_added)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tenant.ID, tenant.Name, tenant.DirectoryID,
		tenant.ApplicationID, tenant.ApplicationSecret,
		tenant.IsActive, tenant.AutoFetchEnabled,
		tenant.ScheduleValue, string(tenant.ScheduleUnit), tenant.DateAdded,
	)
	if err != nil {
		return fmt.Errorf("テナントの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はテナント情報を更新する。
func (r *PostgresTenantRepo) Update(ctx context.Context, tenant *model.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants
		 SET name = $2, directory_id = $3, application_id = $4, application_secret = $5,
		     is_active = $6, auto_fetch_enabled = $7, schedule_value = $8, schedule_unit = $9
		 WHERE id = $1`,
		tenant.ID, tenant.Name, tenant.DirectoryID,
		tenant.ApplicationID, tenant.ApplicationSecret,
		tenant.IsActive, tenant.AutoFetchEnabled,
		tenant.ScheduleValue, string(tenant.ScheduleUnit),
	)
	if err != nil {
		return fmt.Errorf("テナントの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのテナントを削除する。
func (r *PostgresTenantRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("テナントの削除に失敗しました: %w", err)
	}
	return nil
}

// scanTenants は結果セットをテナントのスライスに変換する。
func scanTenants(rows *sql.Rows) ([]*model.Tenant, error) {
	var tenants []*model.Tenant

	for rows.Next() {
		tenant := &model.Tenant{}
		var unit string

		if err := rows.Scan(
			&tenant.ID, &tenant.Name, &tenant.DirectoryID,
			&tenant.ApplicationID, &tenant.ApplicationSecret,
			&tenant.IsActive, &tenant.AutoFetchEnabled,
			&tenant.ScheduleValue, &unit, &tenant.DateAdded,
		); err != nil {
			return nil, fmt.Errorf("テナント行の読み取りに失敗しました: %w", err)
		}

		tenant.ScheduleUnit = model.ScheduleUnit(unit)
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("テナント一覧の走査に失敗しました: %w", err)
	}

	return tenants, nil
}
