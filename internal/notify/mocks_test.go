package notify

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/tenantman/internal/model"
)

// --- テストヘルパー ---

// newTestLogger はテスト用のロガーを生成する。
func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- モック定義 ---

type mockTenantRepo struct {
	listFunc                func(ctx context.Context) ([]*model.Tenant, error)
	findByIDFunc            func(ctx context.Context, id string) (*model.Tenant, error)
	listActiveAutoFetchFunc func(ctx context.Context) ([]*model.Tenant, error)
	createFunc              func(ctx context.Context, tenant *model.Tenant) error
	updateFunc              func(ctx context.Context, tenant *model.Tenant) error
	deleteByIDFunc          func(ctx context.Context, id string) error
}

func (m *mockTenantRepo) List(ctx context.Context) ([]*model.Tenant, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockTenantRepo) FindByID(ctx context.Context, id string) (*model.Tenant, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTenantRepo) ListActiveAutoFetch(ctx context.Context) ([]*model.Tenant, error) {
	if m.listActiveAutoFetchFunc != nil {
		return m.listActiveAutoFetchFunc(ctx)
	}
	return nil, nil
}

func (m *mockTenantRepo) Create(ctx context.Context, tenant *model.Tenant) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, tenant)
	}
	return nil
}

func (m *mockTenantRepo) Update(ctx context.Context, tenant *model.Tenant) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, tenant)
	}
	return nil
}

func (m *mockTenantRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFunc != nil {
		return m.deleteByIDFunc(ctx, id)
	}
	return nil
}

type mockSettingRepo struct {
	listFunc            func(ctx context.Context) ([]*model.NotificationSetting, error)
	listByFrequencyFunc func(ctx context.Context, freq model.Frequency) ([]*model.NotificationSetting, error)
	findByIDFunc        func(ctx context.Context, id string) (*model.NotificationSetting, error)
	createFunc          func(ctx context.Context, setting *model.NotificationSetting) error
	updateFunc          func(ctx context.Context, setting *model.NotificationSetting) error
	deleteByIDFunc      func(ctx context.Context, id string) error
}

func (m *mockSettingRepo) List(ctx context.Context) ([]*model.NotificationSetting, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockSettingRepo) ListByFrequency(ctx context.Context, freq model.Frequency) ([]*model.NotificationSetting, error) {
	if m.listByFrequencyFunc != nil {
		return m.listByFrequencyFunc(ctx, freq)
	}
	return nil, nil
}

func (m *mockSettingRepo) FindByID(ctx context.Context, id string) (*model.NotificationSetting, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockSettingRepo) Create(ctx context.Context, setting *model.NotificationSetting) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, setting)
	}
	return nil
}

func (m *mockSettingRepo) Update(ctx context.Context, setting *model.NotificationSetting) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, setting)
	}
	return nil
}

func (m *mockSettingRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFunc != nil {
		return m.deleteByIDFunc(ctx, id)
	}
	return nil
}

type mockStore struct {
	ensurePartitionFunc func(ctx context.Context, tenant *model.Tenant) error
	upsertFunc          func(ctx context.Context, tenant *model.Tenant, category model.Category, records []model.Record) (int, error)
	queryFunc           func(ctx context.Context, tenant *model.Tenant, category model.Category, after *time.Time) ([]model.Record, error)
	dropPartitionFunc   func(ctx context.Context, tenant *model.Tenant) error
	pruneOlderThanFunc  func(ctx context.Context, tenant *model.Tenant, category model.Category, cutoff time.Time) (int64, error)
}

func (m *mockStore) EnsurePartition(ctx context.Context, tenant *model.Tenant) error {
	if m.ensurePartitionFunc != nil {
		return m.ensurePartitionFunc(ctx, tenant)
	}
	return nil
}

func (m *mockStore) Upsert(ctx context.Context, tenant *model.Tenant, category model.Category, records []model.Record) (int, error) {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, tenant, category, records)
	}
	return 0, nil
}

func (m *mockStore) Query(ctx context.Context, tenant *model.Tenant, category model.Category, after *time.Time) ([]model.Record, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, tenant, category, after)
	}
	return nil, nil
}

func (m *mockStore) DropPartition(ctx context.Context, tenant *model.Tenant) error {
	if m.dropPartitionFunc != nil {
		return m.dropPartitionFunc(ctx, tenant)
	}
	return nil
}

func (m *mockStore) PruneOlderThan(ctx context.Context, tenant *model.Tenant, category model.Category, cutoff time.Time) (int64, error) {
	if m.pruneOlderThanFunc != nil {
		return m.pruneOlderThanFunc(ctx, tenant, category, cutoff)
	}
	return 0, nil
}

func (m *mockStore) PartitionName(tenant *model.Tenant, category model.Category) string {
	return "mock_" + string(category)
}

type mockSender struct {
	sendFunc  func(ctx context.Context, to, subject, htmlBody string) error
	sendCalls int
}

func (m *mockSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.sendCalls++
	if m.sendFunc != nil {
		return m.sendFunc(ctx, to, subject, htmlBody)
	}
	return nil
}

type mockRenderer struct {
	renderFunc func(digest *model.Digest, tenantNames map[string]string) (string, string, error)
}

func (m *mockRenderer) Render(digest *model.Digest, tenantNames map[string]string) (string, string, error) {
	if m.renderFunc != nil {
		return m.renderFunc(digest, tenantNames)
	}
	return "subject", "<html></html>", nil
}

// mockCollector は呼び出し回数を数えるだけのメトリクス実装。
type mockCollector struct {
	syncSuccess   int
	syncFailure   int
	digestSent    int
	digestSkipped int
	digestFailure int
}

func (m *mockCollector) RecordSyncSuccess(category string) { m.syncSuccess++ }

func (m *mockCollector) RecordSyncFailure(category string) { m.syncFailure++ }

func (m *mockCollector) RecordSyncLatency(duration time.Duration) {}

func (m *mockCollector) RecordRecordsUpserted(category string, n int) {}

func (m *mockCollector) RecordDigestSent() { m.digestSent++ }

func (m *mockCollector) RecordDigestSkipped() { m.digestSkipped++ }

func (m *mockCollector) RecordDigestFailure() { m.digestFailure++ }
