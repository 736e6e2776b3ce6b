package notify

import (
	"testing"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// TestCutoff は頻度と境界モードごとの時間窓下限の計算を検証する。
func TestCutoff(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		freq          model.Frequency
		exactBoundary bool
		want          time.Time
	}{
		{
			name: "Dailyのスライディング窓は1日前",
			freq: model.FrequencyDaily,
			want: time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC),
		},
		{
			name:          "Dailyの厳密境界は前日の0時",
			freq:          model.FrequencyDaily,
			exactBoundary: true,
			want:          time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "Weeklyのスライディング窓は7日前",
			freq: model.FrequencyWeekly,
			want: time.Date(2024, 3, 3, 15, 0, 0, 0, time.UTC),
		},
		{
			name:          "Weeklyの厳密境界は7日前の0時",
			freq:          model.FrequencyWeekly,
			exactBoundary: true,
			want:          time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "MonthlyはWeeklyと同じ7日窓に正規化される",
			freq: model.FrequencyMonthly,
			want: time.Date(2024, 3, 3, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "未知の頻度は7日窓として扱う",
			freq: model.Frequency("Quarterly"),
			want: time.Date(2024, 3, 3, 15, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cutoff(tt.freq, tt.exactBoundary, now)
			if !got.Equal(tt.want) {
				t.Errorf("Cutoff(%s, %v) = %v, want %v", tt.freq, tt.exactBoundary, got, tt.want)
			}
		})
	}
}
