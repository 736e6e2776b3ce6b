// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, tenant, notification, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTenantNotFound           = "TENANT_NOT_FOUND"
	ErrCodeSettingNotFound          = "SETTING_NOT_FOUND"
	ErrCodeStorageUnavailable       = "STORAGE_UNAVAILABLE"
	ErrCodePartitionProvisionFailed = "PARTITION_PROVISION_FAILED"
	ErrCodeFetchFailed              = "FETCH_FAILED"
	ErrCodeRenderOrSendFailed       = "RENDER_OR_SEND_FAILED"
	ErrCodeInvalidRequest           = "INVALID_REQUEST"
	ErrCodeInvalidFrequency         = "INVALID_FREQUENCY"
	ErrCodeInvalidCategory          = "INVALID_CATEGORY"
)

// NewTenantNotFoundError はテナント未検出エラーを生成する。
func NewTenantNotFoundError(tenantID string) *APIError {
	return &APIError{
		Code:     ErrCodeTenantNotFound,
		Message:  fmt.Sprintf("指定されたテナントが見つかりません: %s", tenantID),
		Category: "tenant",
		Action:   "テナントIDを確認してください。",
	}
}

// NewSettingNotFoundError は通知設定未検出エラーを生成する。
func NewSettingNotFoundError(settingID string) *APIError {
	return &APIError{
		Code:     ErrCodeSettingNotFound,
		Message:  fmt.Sprintf("指定された通知設定が見つかりません: %s", settingID),
		Category: "notification",
		Action:   "通知設定IDを確認してください。",
	}
}

// NewStorageUnavailableError はバックエンドストア接続不可エラーを生成する。
// 呼び出し側はこのエラーを「このサイクルをスキップ」として扱い、プロセスを
// 停止させてはならない。
func NewStorageUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  fmt.Sprintf("ストレージに接続できません: %s", reason),
		Category: "storage",
		Action:   "データベースの稼働状態を確認してください。",
	}
}

// NewPartitionProvisionFailedError はテナントパーティション作成失敗エラーを生成する。
func NewPartitionProvisionFailedError(tenantName string) *APIError {
	return &APIError{
		Code:     ErrCodePartitionProvisionFailed,
		Message:  fmt.Sprintf("テナント用テーブルの作成に失敗しました: %s", tenantName),
		Category: "storage",
		Action:   "データベースの権限と空き容量を確認してください。",
	}
}

// NewFetchFailedError は外部APIフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("データの取得に失敗しました: %s", reason),
		Category: "tenant",
		Action:   "テナントの資格情報と接続状態を確認し、次回の同期を待つか再実行してください。",
	}
}

// NewRenderOrSendFailedError はメール描画・送信失敗エラーを生成する。
func NewRenderOrSendFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRenderOrSendFailed,
		Message:  fmt.Sprintf("通知メールの送信に失敗しました: %s", reason),
		Category: "notification",
		Action:   "送信元アカウントの設定を確認してください。",
	}
}

// NewInvalidFrequencyError は無効な配信頻度エラーを生成する。
func NewInvalidFrequencyError(frequency string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFrequency,
		Message:  fmt.Sprintf("無効な配信頻度です: %s", frequency),
		Category: "validation",
		Action:   "配信頻度には Daily、Weekly、Monthly のいずれかを指定してください。",
	}
}

// NewInvalidCategoryError は無効なカテゴリエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なデータ種別です: %s", category),
		Category: "validation",
		Action:   "データ種別には updates、known-issues、news のいずれかを指定してください。",
	}
}
