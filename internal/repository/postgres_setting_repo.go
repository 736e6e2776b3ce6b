package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/tenantman/internal/model"
)

// PostgresSettingRepo はPostgreSQLを使用した通知設定リポジトリ。
// 対象テナント集合と有効カテゴリ集合はJSONB配列として保存する。
type PostgresSettingRepo struct {
	db *sql.DB
}

// NewPostgresSettingRepo はPostgresSettingRepoを生成する。
func NewPostgresSettingRepo(db *sql.DB) *PostgresSettingRepo {
	return &PostgresSettingRepo{db: db}
}

const settingColumns = `id, name, email, tenants, update_types, frequency, created_at, updated_at`

// List は全通知設定をcreated_at昇順で取得する。
func (r *PostgresSettingRepo) List(ctx context.Context) ([]*model.NotificationSetting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM notification_settings ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("通知設定一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanSettings(rows)
}

// ListByFrequency は指定頻度の通知設定を取得する。
func (r *PostgresSettingRepo) ListByFrequency(ctx context.Context, freq model.Frequency) ([]*model.NotificationSetting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM notification_settings
		 WHERE frequency = $1 ORDER BY created_at`,
		string(freq))
	if err != nil {
		return nil, fmt.Errorf("通知設定の頻度別取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanSettings(rows)
}

// FindByID は指定IDの通知設定を取得する。見つからない場合はnilを返す。
func (r *PostgresSettingRepo) FindByID(ctx context.Context, id string) (*model.NotificationSetting, error) {
	var (
		setting       model.NotificationSetting
		tenantsJSON   []byte
		typesJSON     []byte
		frequency     string
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT `+settingColumns+` FROM notification_settings WHERE id = $1`,
		id,
	).Scan(
		&setting.ID, &setting.Name, &setting.Email,
		&tenantsJSON, &typesJSON, &frequency,
		&setting.CreatedAt, &setting.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("通知設定の取得に失敗しました: %w", err)
	}

	if err := decodeSettingJSON(&setting, tenantsJSON, typesJSON, frequency); err != nil {
		return nil, err
	}
	return &setting, nil
}

// Create は通知設定を作成する。
func (r *PostgresSettingRepo) Create(ctx context.Context, setting *model.NotificationSetting) error {
	tenantsJSON, typesJSON, err := encodeSettingJSON(setting)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO notification_settings (id, name, email, tenants, update_types, frequency, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		setting.ID, setting.Name, setting.Email,
		tenantsJSON, typesJSON, string(setting.Frequency),
		setting.CreatedAt, setting.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("通知設定の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は通知設定を更新する。
func (r *PostgresSettingRepo) Update(ctx context.Context, setting *model.NotificationSetting) error {
	tenantsJSON, typesJSON, err := encodeSettingJSON(setting)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE notification_settings
		 SET name = $2, email = $3, tenants = $4, update_types = $5, frequency = $6, updated_at = $7
		 WHERE id = $1`,
		setting.ID, setting.Name, setting.Email,
		tenantsJSON, typesJSON, string(setting.Frequency),
		setting.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("通知設定の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの通知設定を削除する。
func (r *PostgresSettingRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notification_settings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("通知設定の削除に失敗しました: %w", err)
	}
	return nil
}

// scanSettings は結果セットを通知設定のスライスに変換する。
func scanSettings(rows *sql.Rows) ([]*model.NotificationSetting, error) {
	var settings []*model.NotificationSetting

	for rows.Next() {
		var (
			setting     model.NotificationSetting
			tenantsJSON []byte
			typesJSON   []byte
			frequency   string
		)

		if err := rows.Scan(
			&setting.ID, &setting.Name, &setting.Email,
			&tenantsJSON, &typesJSON, &frequency,
			&setting.CreatedAt, &setting.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("通知設定行の読み取りに失敗しました: %w", err)
		}

		if err := decodeSettingJSON(&setting, tenantsJSON, typesJSON, frequency); err != nil {
			return nil, err
		}
		settings = append(settings, &setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知設定一覧の走査に失敗しました: %w", err)
	}

	return settings, nil
}

// encodeSettingJSON はテナント集合とカテゴリ集合をJSONB用にエンコードする。
func encodeSettingJSON(setting *model.NotificationSetting) (tenantsJSON, typesJSON []byte, err error) {
	tenantIDs := setting.TenantIDs
	if tenantIDs == nil {
		tenantIDs = []string{}
	}
	categories := setting.Categories
	if categories == nil {
		categories = []model.Category{}
	}

	tenantsJSON, err = json.Marshal(tenantIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("対象テナントのエンコードに失敗しました: %w", err)
	}
	typesJSON, err = json.Marshal(categories)
	if err != nil {
		return nil, nil, fmt.Errorf("有効カテゴリのエンコードに失敗しました: %w", err)
	}
	return tenantsJSON, typesJSON, nil
}

// decodeSettingJSON はJSONBカラムをデコードして設定に反映する。
func decodeSettingJSON(setting *model.NotificationSetting, tenantsJSON, typesJSON []byte, frequency string) error {
	if err := json.Unmarshal(tenantsJSON, &setting.TenantIDs); err != nil {
		return fmt.Errorf("対象テナントのデコードに失敗しました: %w", err)
	}
	if err := json.Unmarshal(typesJSON, &setting.Categories); err != nil {
		return fmt.Errorf("有効カテゴリのデコードに失敗しました: %w", err)
	}
	setting.Frequency = model.Frequency(frequency)
	return nil
}
