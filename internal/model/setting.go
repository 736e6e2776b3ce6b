// Package model はドメインモデルを定義する。
package model

import "time"

// Frequency は通知の配信頻度を表す。
type Frequency string

const (
	// FrequencyDaily は日次配信を表す。
	FrequencyDaily Frequency = "Daily"
	// FrequencyWeekly は週次配信を表す。
	FrequencyWeekly Frequency = "Weekly"
	// FrequencyMonthly は月次配信を表す。
	FrequencyMonthly Frequency = "Monthly"
)

// NotificationSetting は通知購読設定を表す。
// 1人の宛先に対して、対象テナント集合と有効カテゴリ集合、配信頻度を保持する。
// CRUDはAPI層から行われ、配信パイプラインからは読み取り専用。
type NotificationSetting struct {
	ID         string
	Name       string
	Email      string
	TenantIDs  []string
	Categories []Category
	Frequency  Frequency
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasCategory は指定カテゴリがこの設定で有効かを返す。
func (s *NotificationSetting) HasCategory(c Category) bool {
	for _, v := range s.Categories {
		if v == c {
			return true
		}
	}
	return false
}
