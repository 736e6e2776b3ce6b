package syncsched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tenantman/internal/metrics"
	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/repository"
	"github.com/hitoshi/tenantman/internal/tenantstore"
)

// SyncResult は1テナントの同期結果のサマリー。手動トリガーAPIの応答に使用する。
type SyncResult struct {
	TenantID     string                    `json:"tenantId"`
	Upserted     map[model.Category]int    `json:"upserted"`
	Failed       map[model.Category]string `json:"failed,omitempty"`
	AllSucceeded bool                      `json:"allSucceeded"`
}

// Scheduler はテナント同期のスケジューリングと並列制御を行う。
// ティッカーでdue判定を行い、semaphoreパターンで最大並列数を制御しながら
// テナント単位の同期を実行する。同一テナントの同期は同時に1つしか走らない
// （スケジュール実行と手動トリガーの競合防止）。
type Scheduler struct {
	tenantRepo     repository.TenantRepository
	fetchLog       repository.FetchLogRepository
	store          tenantstore.Store
	gateway        FetchGateway
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int

	// テストで時刻を固定するためのフック
	now func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	tenantRepo repository.TenantRepository,
	fetchLog repository.FetchLogRepository,
	store tenantstore.Store,
	gateway FetchGateway,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		tenantRepo:     tenantRepo,
		fetchLog:       fetchLog,
		store:          store,
		gateway:        gateway,
		metrics:        collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
		running:        make(map[string]bool),
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はdue判定を1回行い、対象テナントを並列で同期する。
// テナント一覧の取得に失敗した場合のみサイクルを中断してエラーを返す
// （次のティックで再試行される）。テナント単位の失敗はログに記録して
// 他のテナントの処理を続行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()

	tenants, err := s.tenantRepo.ListActiveAutoFetch(ctx)
	if err != nil {
		return fmt.Errorf("自動フェッチ対象テナントの取得に失敗しました: %w", err)
	}

	var due []*model.Tenant
	for _, tenant := range tenants {
		entry, err := s.fetchLog.Find(ctx, tenant.ID, model.FetchLogUnifiedKey)
		if err != nil {
			// このテナントのdue判定のみ諦め、残りのテナントは続行する
			s.logger.Error("フェッチログの取得に失敗しました",
				slog.String("tenant_id", tenant.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if IsDue(entry, tenant.IntervalHours(), start) {
			due = append(due, tenant)
		}
	}

	if len(due) == 0 {
		s.logger.Info("同期対象のテナントはありません")
		return nil
	}

	s.logger.Info("同期サイクルを開始します",
		slog.Int("tenant_count", len(due)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, tenant := range due {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(t *model.Tenant) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if _, err := s.syncTenant(ctx, t); err != nil {
				s.logger.Error("テナント同期に失敗しました",
					slog.String("tenant_id", t.ID),
					slog.String("tenant_name", t.Name),
					slog.String("error", err.Error()),
				)
			}
		}(tenant)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("同期サイクルが完了しました",
		slog.Int("tenant_count", len(due)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunTenant は指定テナントを1回だけ同期する。手動トリガーAPIから呼ばれ、
// due判定を行わずに即時実行する。テナントが存在しない場合はエラーを返す。
func (s *Scheduler) RunTenant(ctx context.Context, tenantID string) (*SyncResult, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("テナントの取得に失敗しました: %w", err)
	}
	if tenant == nil {
		return nil, model.NewTenantNotFoundError(tenantID)
	}

	return s.syncTenant(ctx, tenant)
}

// syncTenant は1テナントの3カテゴリを固定順で同期する。
// カテゴリ単位で失敗を隔離し、失敗したカテゴリがあっても残りは続行する。
// 統合フェッチログは3カテゴリすべて成功した場合のみ進める。
func (s *Scheduler) syncTenant(ctx context.Context, tenant *model.Tenant) (*SyncResult, error) {
	if !s.acquire(tenant.ID) {
		return nil, fmt.Errorf("テナントは同期中です (tenant=%s)", tenant.ID)
	}
	defer s.release(tenant.ID)

	start := s.now()
	defer func() {
		s.metrics.RecordSyncLatency(time.Since(start))
	}()

	if err := s.store.EnsurePartition(ctx, tenant); err != nil {
		return nil, fmt.Errorf("パーティションの作成に失敗しました (tenant=%s): %w", tenant.Name, err)
	}

	result := &SyncResult{
		TenantID: tenant.ID,
		Upserted: make(map[model.Category]int),
		Failed:   make(map[model.Category]string),
	}

	for _, category := range model.AllCategories() {
		count, err := s.syncCategory(ctx, tenant, category)
		if err != nil {
			s.metrics.RecordSyncFailure(string(category))
			result.Failed[category] = err.Error()
			s.logger.Error("カテゴリ同期に失敗しました",
				slog.String("tenant_id", tenant.ID),
				slog.String("category", string(category)),
				slog.String("error", err.Error()),
			)
			// 失敗もrefresh-times照会用に記録する。due判定には影響しない。
			if logErr := s.fetchLog.Record(ctx, tenant.ID, string(category), s.now(), model.FetchStatusFailed); logErr != nil {
				s.logger.Error("フェッチログの記録に失敗しました",
					slog.String("tenant_id", tenant.ID),
					slog.String("error", logErr.Error()),
				)
			}
			continue
		}

		s.metrics.RecordSyncSuccess(string(category))
		s.metrics.RecordRecordsUpserted(string(category), count)
		result.Upserted[category] = count

		if logErr := s.fetchLog.Record(ctx, tenant.ID, string(category), s.now(), model.FetchStatusSuccess); logErr != nil {
			s.logger.Error("フェッチログの記録に失敗しました",
				slog.String("tenant_id", tenant.ID),
				slog.String("error", logErr.Error()),
			)
		}
	}

	result.AllSucceeded = len(result.Failed) == 0

	// 3カテゴリすべて成功した場合のみ統合キーを進める。
	// 一部失敗したテナントは次のティックで再びdueとなる。
	if result.AllSucceeded {
		if err := s.fetchLog.Record(ctx, tenant.ID, model.FetchLogUnifiedKey, s.now(), model.FetchStatusSuccess); err != nil {
			return result, fmt.Errorf("統合フェッチログの記録に失敗しました (tenant=%s): %w", tenant.ID, err)
		}
	}

	s.logger.Info("テナント同期が完了しました",
		slog.String("tenant_id", tenant.ID),
		slog.String("tenant_name", tenant.Name),
		slog.Bool("all_succeeded", result.AllSucceeded),
	)

	return result, nil
}

// syncCategory は1カテゴリをフェッチしてアップサートする。
func (s *Scheduler) syncCategory(ctx context.Context, tenant *model.Tenant, category model.Category) (int, error) {
	records, err := s.gateway.FetchCategory(ctx, tenant, category)
	if err != nil {
		return 0, err
	}

	count, err := s.store.Upsert(ctx, tenant, category, records)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// acquire はテナントの同期実行権を取得する。既に実行中の場合はfalseを返す。
func (s *Scheduler) acquire(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[tenantID] {
		return false
	}
	s.running[tenantID] = true
	return true
}

func (s *Scheduler) release(tenantID string) {
	s.mu.Lock()
	delete(s.running, tenantID)
	s.mu.Unlock()
}

// IsDue はフェッチログエントリと間隔（時間）からdue判定を行う。
// エントリが存在しない（未フェッチ）場合は即時dueとなる。
func IsDue(entry *model.FetchLogEntry, intervalHours int, now time.Time) bool {
	if entry == nil {
		return true
	}
	return now.Sub(entry.LastFetchTime) >= time.Duration(intervalHours)*time.Hour
}
