// Package model はドメインモデルを定義する。
package model

import "time"

// Tenant は監視対象の顧客組織（Microsoft 365テナント）を表す。
type Tenant struct {
	ID                string
	Name              string
	DirectoryID       string // Entra ID ディレクトリ（テナント）ID
	ApplicationID     string
	ApplicationSecret string
	IsActive          bool
	AutoFetchEnabled  bool
	ScheduleValue     int
	ScheduleUnit      ScheduleUnit
	DateAdded         time.Time
}

// ScheduleUnit は自動フェッチ間隔の単位を表す。
type ScheduleUnit string

const (
	// ScheduleUnitHours は時間単位のスケジュールを表す。
	ScheduleUnitHours ScheduleUnit = "hours"
	// ScheduleUnitDays は日単位のスケジュールを表す。
	ScheduleUnitDays ScheduleUnit = "days"
)

// IntervalHours はScheduleValue/ScheduleUnitから自動フェッチ間隔を時間数で返す。
// 値が未設定（0以下）の場合はデフォルトの24時間を返す。
func (t *Tenant) IntervalHours() int {
	if t.ScheduleValue <= 0 {
		return 24
	}
	if t.ScheduleUnit == ScheduleUnitDays {
		return t.ScheduleValue * 24
	}
	return t.ScheduleValue
}

// FetchLogEntry は(テナント, データ種別)ごとの最終フェッチ時刻を表す。
// data_typeには3カテゴリのいずれか、またはスケジューラの統合判定キー
// FetchLogUnifiedKey が入る。エントリが存在しない場合は「未フェッチ」であり、
// 即時フェッチ対象として扱われる。
type FetchLogEntry struct {
	TenantID      string
	DataType      string
	LastFetchTime time.Time
	Status        string
}

// FetchLogUnifiedKey は3カテゴリをまとめて1ユニットとしてフェッチ判定する
// 統合キー。スケジューラのdue判定はこのキーのみを参照する。
const FetchLogUnifiedKey = "unified"

// フェッチログのステータス値。
const (
	FetchStatusSuccess = "success"
	FetchStatusFailed  = "failed"
)
