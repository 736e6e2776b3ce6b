// Package notify は通知ダイジェストの組み立てと配信を提供する。
// 頻度に応じた時間窓のフィルタリング、テナント横断の集約、HTMLメールの
// 描画と送信を含む。
package notify

import (
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// windowDays は頻度ごとの時間窓の日数。
// MonthlyはWeeklyと同じ7日に正規化される。未知の頻度も7日として扱う。
func windowDays(freq model.Frequency) int {
	if freq == model.FrequencyDaily {
		return 1
	}
	return 7
}

// Cutoff は頻度と基準時刻から時間窓の下限時刻を返す。
// exactBoundaryがtrueの場合、日数を引いた時点の属する日の0時
// （基準時刻のロケーション）まで切り捨てる。falseの場合は基準時刻から
// 日数をそのまま引いたスライディング窓となる。
func Cutoff(freq model.Frequency, exactBoundary bool, now time.Time) time.Time {
	cutoff := now.AddDate(0, 0, -windowDays(freq))
	if exactBoundary {
		return time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, cutoff.Location())
	}
	return cutoff
}
