package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tenantman/internal/metrics"
	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/repository"
)

// Sender は通知メールの送信インターフェース。実装はgraph.GraphMailer。
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// DispatchResult は1設定の配信結果。
type DispatchResult struct {
	SettingID string `json:"settingId"`
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

// Dispatcher はダイジェストの組み立てから送信までを統括する。
// スケジュール配信と手動送信APIの両方から使用される。
type Dispatcher struct {
	settingRepo repository.SettingRepository
	tenantRepo  repository.TenantRepository
	aggregator  *Aggregator
	renderer    Renderer
	sender      Sender
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
func NewDispatcher(
	settingRepo repository.SettingRepository,
	tenantRepo repository.TenantRepository,
	aggregator *Aggregator,
	renderer Renderer,
	sender Sender,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		settingRepo: settingRepo,
		tenantRepo:  tenantRepo,
		aggregator:  aggregator,
		renderer:    renderer,
		sender:      sender,
		metrics:     collector,
		logger:      logger,
	}
}

// DispatchOne は指定設定のダイジェストを組み立てて送信する。
// 時間窓内に1件もレコードがない場合は送信せずスキップする。
// 設定が存在しない場合はエラーを返す。
func (d *Dispatcher) DispatchOne(ctx context.Context, settingID string, opts BuildOptions) (*DispatchResult, error) {
	setting, err := d.settingRepo.FindByID(ctx, settingID)
	if err != nil {
		return nil, fmt.Errorf("通知設定の取得に失敗しました: %w", err)
	}
	if setting == nil {
		return nil, model.NewSettingNotFoundError(settingID)
	}

	return d.dispatch(ctx, setting, opts)
}

// DispatchDue は指定頻度の全設定を配信する。
// 設定単位で失敗を隔離し、1設定の失敗が他の設定の配信を妨げない。
func (d *Dispatcher) DispatchDue(ctx context.Context, freq model.Frequency) error {
	settings, err := d.settingRepo.ListByFrequency(ctx, freq)
	if err != nil {
		return fmt.Errorf("通知設定の取得に失敗しました: %w", err)
	}

	if len(settings) == 0 {
		return nil
	}

	d.logger.Info("ダイジェスト配信を開始します",
		slog.String("frequency", string(freq)),
		slog.Int("setting_count", len(settings)),
	)

	for _, setting := range settings {
		result, err := d.dispatch(ctx, setting, BuildOptions{CheckPeriod: true})
		if err != nil {
			d.logger.Error("ダイジェスト配信に失敗しました",
				slog.String("setting_id", setting.ID),
				slog.String("email", setting.Email),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !result.Delivered {
			d.logger.Info("新着がないためダイジェスト配信をスキップしました",
				slog.String("setting_id", setting.ID),
			)
		}
	}

	return nil
}

// dispatch はダイジェストの組み立て・描画・送信を行う。
func (d *Dispatcher) dispatch(ctx context.Context, setting *model.NotificationSetting, opts BuildOptions) (*DispatchResult, error) {
	digest, err := d.aggregator.Build(ctx, setting, opts)
	if err != nil {
		return nil, fmt.Errorf("ダイジェストの組み立てに失敗しました: %w", err)
	}

	if !digest.HasContent() {
		d.metrics.RecordDigestSkipped()
		return &DispatchResult{
			SettingID: setting.ID,
			Delivered: false,
			Reason:    "no updates in period",
		}, nil
	}

	tenantNames, err := d.tenantNames(ctx, setting.TenantIDs)
	if err != nil {
		return nil, err
	}

	subject, htmlBody, err := d.renderer.Render(digest, tenantNames)
	if err != nil {
		d.metrics.RecordDigestFailure()
		return nil, model.NewRenderOrSendFailedError(err.Error())
	}

	if err := d.sender.Send(ctx, setting.Email, subject, htmlBody); err != nil {
		d.metrics.RecordDigestFailure()
		return nil, model.NewRenderOrSendFailedError(err.Error())
	}

	d.metrics.RecordDigestSent()
	d.logger.Info("ダイジェストを送信しました",
		slog.String("setting_id", setting.ID),
		slog.String("email", setting.Email),
		slog.String("frequency", string(setting.Frequency)),
	)

	return &DispatchResult{SettingID: setting.ID, Delivered: true}, nil
}

// tenantNames は表示用のテナントID→名前マップを構築する。
// 存在しないテナントは除外する（描画側がIDで代替表示する）。
func (d *Dispatcher) tenantNames(ctx context.Context, tenantIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		tenant, err := d.tenantRepo.FindByID(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("テナント名の取得に失敗しました: %w", err)
		}
		if tenant != nil {
			names[tenantID] = tenant.Name
		}
	}
	return names, nil
}

// ShouldDispatchAt は指定時刻が頻度の配信タイミングかを判定する。
// Dailyは毎日、Weeklyは月曜、Monthlyは毎月1日の、いずれもdispatchHour時
// ちょうど（時単位）に配信する。
func ShouldDispatchAt(freq model.Frequency, now time.Time, dispatchHour int) bool {
	if now.Hour() != dispatchHour {
		return false
	}
	switch freq {
	case model.FrequencyDaily:
		return true
	case model.FrequencyWeekly:
		return now.Weekday() == time.Monday
	case model.FrequencyMonthly:
		return now.Day() == 1
	}
	return false
}
