package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/tenantman/internal/middleware"
	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/notify"
	"github.com/hitoshi/tenantman/internal/setting"
	"github.com/hitoshi/tenantman/internal/tenant"
	"github.com/hitoshi/tenantman/internal/worker/syncsched"
)

// --- テストヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- モック定義 ---

type mockTenantService struct {
	listFunc         func(ctx context.Context) ([]*model.Tenant, error)
	getFunc          func(ctx context.Context, id string) (*model.Tenant, error)
	createFunc       func(ctx context.Context, input tenant.CreateInput) (*model.Tenant, error)
	updateFunc       func(ctx context.Context, id string, input tenant.UpdateInput) (*model.Tenant, error)
	deleteFunc       func(ctx context.Context, id string) error
	refreshTimesFunc func(ctx context.Context, id string) ([]model.FetchLogEntry, error)
}

func (m *mockTenantService) List(ctx context.Context) ([]*model.Tenant, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockTenantService) Get(ctx context.Context, id string) (*model.Tenant, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &model.Tenant{ID: id}, nil
}

func (m *mockTenantService) Create(ctx context.Context, input tenant.CreateInput) (*model.Tenant, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, input)
	}
	return &model.Tenant{ID: "generated", Name: input.Name}, nil
}

func (m *mockTenantService) Update(ctx context.Context, id string, input tenant.UpdateInput) (*model.Tenant, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, input)
	}
	return &model.Tenant{ID: id, Name: input.Name}, nil
}

func (m *mockTenantService) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockTenantService) RefreshTimes(ctx context.Context, id string) ([]model.FetchLogEntry, error) {
	if m.refreshTimesFunc != nil {
		return m.refreshTimesFunc(ctx, id)
	}
	return nil, nil
}

type mockSettingService struct {
	listFunc   func(ctx context.Context) ([]*model.NotificationSetting, error)
	getFunc    func(ctx context.Context, id string) (*model.NotificationSetting, error)
	createFunc func(ctx context.Context, input setting.Input) (*model.NotificationSetting, error)
	updateFunc func(ctx context.Context, id string, input setting.Input) (*model.NotificationSetting, error)
	deleteFunc func(ctx context.Context, id string) error
}

func (m *mockSettingService) List(ctx context.Context) ([]*model.NotificationSetting, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockSettingService) Get(ctx context.Context, id string) (*model.NotificationSetting, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &model.NotificationSetting{ID: id}, nil
}

func (m *mockSettingService) Create(ctx context.Context, input setting.Input) (*model.NotificationSetting, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, input)
	}
	return &model.NotificationSetting{ID: "generated", Name: input.Name}, nil
}

func (m *mockSettingService) Update(ctx context.Context, id string, input setting.Input) (*model.NotificationSetting, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, input)
	}
	return &model.NotificationSetting{ID: id, Name: input.Name}, nil
}

func (m *mockSettingService) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

type mockSyncTrigger struct {
	runTenantFunc func(ctx context.Context, tenantID string) (*syncsched.SyncResult, error)
}

func (m *mockSyncTrigger) RunTenant(ctx context.Context, tenantID string) (*syncsched.SyncResult, error) {
	if m.runTenantFunc != nil {
		return m.runTenantFunc(ctx, tenantID)
	}
	return &syncsched.SyncResult{TenantID: tenantID, AllSucceeded: true}, nil
}

type mockDigestDispatcher struct {
	dispatchOneFunc func(ctx context.Context, settingID string, opts notify.BuildOptions) (*notify.DispatchResult, error)
}

func (m *mockDigestDispatcher) DispatchOne(ctx context.Context, settingID string, opts notify.BuildOptions) (*notify.DispatchResult, error) {
	if m.dispatchOneFunc != nil {
		return m.dispatchOneFunc(ctx, settingID, opts)
	}
	return &notify.DispatchResult{SettingID: settingID, Delivered: true}, nil
}

type routerMocks struct {
	tenants    *mockTenantService
	settings   *mockSettingService
	sync       *mockSyncTrigger
	dispatcher *mockDigestDispatcher
}

func newTestRouter(t *testing.T, mocks *routerMocks) http.Handler {
	t.Helper()
	var buf bytes.Buffer

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(6000, 6000))
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:            newTestLogger(&buf),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		TenantService:     mocks.tenants,
		SettingService:    mocks.settings,
		SyncTrigger:       mocks.sync,
		DigestDispatch:    mocks.dispatcher,
	})
}

func defaultMocks() *routerMocks {
	return &routerMocks{
		tenants:    &mockTenantService{},
		settings:   &mockSettingService{},
		sync:       &mockSyncTrigger{},
		dispatcher: &mockDigestDispatcher{},
	}
}

// --- テスト ---

// TestHealthEndpoint はヘルスチェックエンドポイントを検証する。
func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, defaultMocks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// TestListTenants はテナント一覧のレスポンス形式を検証する。
// application_secretはレスポンスに含めない。
func TestListTenants(t *testing.T) {
	mocks := defaultMocks()
	mocks.tenants.listFunc = func(ctx context.Context) ([]*model.Tenant, error) {
		return []*model.Tenant{{
			ID:                "t1",
			Name:              "Contoso",
			DirectoryID:       "dir-1",
			ApplicationID:     "app-1",
			ApplicationSecret: "super-secret",
			IsActive:          true,
			DateAdded:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}}, nil
	}
	router := newTestRouter(t, mocks)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "super-secret") {
		t.Error("レスポンスにapplication_secretが含まれている")
	}

	var results []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(results) != 1 || results[0]["name"] != "Contoso" {
		t.Errorf("results = %v", results)
	}
}

// TestCreateTenant はテナント登録の正常系とバリデーションを検証する。
func TestCreateTenant(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name: "正常系",
			body: `{"name": "Contoso", "directory_id": "dir-1", "application_id": "app-1",
				"application_secret": "secret", "is_active": true,
				"schedule_value": 6, "schedule_unit": "hours"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "name欠落は400",
			body:       `{"directory_id": "dir-1", "application_id": "app-1", "application_secret": "s"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "application_secret欠落は400",
			body: `{"name": "Contoso", "directory_id": "dir-1", "application_id": "app-1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "未知のschedule_unitは400",
			body: `{"name": "Contoso", "directory_id": "dir-1", "application_id": "app-1",
				"application_secret": "s", "schedule_unit": "weeks"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "壊れたJSONは400",
			body:       `{"name": `,
			wantStatus: http.StatusBadRequest,
		},
	}

	router := newTestRouter(t, defaultMocks())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tenants", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

// TestGetTenant_NotFound はテナント未検出が404と統一エラーフォーマットに
// なることを検証する。
func TestGetTenant_NotFound(t *testing.T) {
	mocks := defaultMocks()
	mocks.tenants.getFunc = func(ctx context.Context, id string) (*model.Tenant, error) {
		return nil, model.NewTenantNotFoundError(id)
	}
	router := newTestRouter(t, mocks)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Code != model.ErrCodeTenantNotFound {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeTenantNotFound)
	}
	if resp.Action == "" {
		t.Error("actionが空")
	}
}

// TestUpdateTenant_TriggersSyncOnActivation は非アクティブ→アクティブ切り替えで
// バックグラウンド同期が起動されることを検証する。
func TestUpdateTenant_TriggersSyncOnActivation(t *testing.T) {
	mocks := defaultMocks()
	mocks.tenants.getFunc = func(ctx context.Context, id string) (*model.Tenant, error) {
		return &model.Tenant{ID: id, Name: "Contoso", IsActive: false}, nil
	}
	mocks.tenants.updateFunc = func(ctx context.Context, id string, input tenant.UpdateInput) (*model.Tenant, error) {
		return &model.Tenant{ID: id, Name: input.Name, IsActive: input.IsActive}, nil
	}
	synced := make(chan string, 1)
	mocks.sync.runTenantFunc = func(ctx context.Context, tenantID string) (*syncsched.SyncResult, error) {
		synced <- tenantID
		return &syncsched.SyncResult{TenantID: tenantID, AllSucceeded: true}, nil
	}
	router := newTestRouter(t, mocks)

	body := `{"name": "Contoso", "directory_id": "dir-1", "application_id": "app-1", "is_active": true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/tenants/t1", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	select {
	case id := <-synced:
		if id != "t1" {
			t.Errorf("同期対象 = %q, want %q", id, "t1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("アクティブ化後に同期が起動されなかった")
	}
}

// TestUpdateTenant_NoSyncWhenAlreadyActive はアクティブのままの更新では同期が
// 起動されないことを検証する。
func TestUpdateTenant_NoSyncWhenAlreadyActive(t *testing.T) {
	mocks := defaultMocks()
	mocks.tenants.getFunc = func(ctx context.Context, id string) (*model.Tenant, error) {
		return &model.Tenant{ID: id, Name: "Contoso", IsActive: true}, nil
	}
	synced := make(chan string, 1)
	mocks.sync.runTenantFunc = func(ctx context.Context, tenantID string) (*syncsched.SyncResult, error) {
		synced <- tenantID
		return &syncsched.SyncResult{TenantID: tenantID, AllSucceeded: true}, nil
	}
	router := newTestRouter(t, mocks)

	body := `{"name": "Contoso", "directory_id": "dir-1", "application_id": "app-1", "is_active": true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/tenants/t1", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	select {
	case <-synced:
		t.Error("同期が起動されるべきではない")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestDeleteTenant は削除の204応答を検証する。
func TestDeleteTenant(t *testing.T) {
	router := newTestRouter(t, defaultMocks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tenants/t1", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

// TestTriggerSync は手動同期トリガーの応答を検証する。
func TestTriggerSync(t *testing.T) {
	mocks := defaultMocks()
	mocks.sync.runTenantFunc = func(ctx context.Context, tenantID string) (*syncsched.SyncResult, error) {
		return &syncsched.SyncResult{
			TenantID:     tenantID,
			Upserted:     map[model.Category]int{model.CategoryUpdates: 12},
			AllSucceeded: true,
		}, nil
	}
	router := newTestRouter(t, mocks)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tenants/t1/sync", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}

	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if result["tenantId"] != "t1" {
		t.Errorf("tenantId = %v, want t1", result["tenantId"])
	}
	if result["allSucceeded"] != true {
		t.Errorf("allSucceeded = %v, want true", result["allSucceeded"])
	}
}

// TestTriggerSync_FetchFailed はフェッチ失敗が502にマッピングされることを検証する。
func TestTriggerSync_FetchFailed(t *testing.T) {
	mocks := defaultMocks()
	mocks.sync.runTenantFunc = func(ctx context.Context, tenantID string) (*syncsched.SyncResult, error) {
		return nil, model.NewFetchFailedError("graph unreachable")
	}
	router := newTestRouter(t, mocks)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tenants/t1/sync", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

// TestSendNotification は手動通知送信の応答とオプションの引き渡しを検証する。
func TestSendNotification(t *testing.T) {
	mocks := defaultMocks()
	var gotOpts notify.BuildOptions
	mocks.dispatcher.dispatchOneFunc = func(ctx context.Context, settingID string, opts notify.BuildOptions) (*notify.DispatchResult, error) {
		gotOpts = opts
		return &notify.DispatchResult{SettingID: settingID, Delivered: false, Reason: "no updates in period"}, nil
	}
	router := newTestRouter(t, mocks)

	body := `{"id": "s1", "checkPeriod": true, "forceExactDateFilter": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/send-notification", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	if !gotOpts.CheckPeriod || !gotOpts.ExactBoundary {
		t.Errorf("opts = %+v, want CheckPeriod/ExactBoundaryともにtrue", gotOpts)
	}
	if !strings.Contains(rec.Body.String(), "no updates in period") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// TestSendNotification_CheckPeriodDefaults はcheckPeriod省略時にtrue
// （頻度に応じた時間窓）が使われ、明示したfalseが通ることを検証する。
func TestSendNotification_CheckPeriodDefaults(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		wantCheckPeriod bool
	}{
		{name: "省略時はtrue", body: `{"id": "s1"}`, wantCheckPeriod: true},
		{name: "明示的なfalseは尊重される", body: `{"id": "s1", "checkPeriod": false}`, wantCheckPeriod: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := defaultMocks()
			var gotOpts notify.BuildOptions
			mocks.dispatcher.dispatchOneFunc = func(ctx context.Context, settingID string, opts notify.BuildOptions) (*notify.DispatchResult, error) {
				gotOpts = opts
				return &notify.DispatchResult{SettingID: settingID, Delivered: true}, nil
			}
			router := newTestRouter(t, mocks)

			req := httptest.NewRequest(http.MethodPost, "/api/send-notification", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
			}
			if gotOpts.CheckPeriod != tt.wantCheckPeriod {
				t.Errorf("CheckPeriod = %v, want %v", gotOpts.CheckPeriod, tt.wantCheckPeriod)
			}
		})
	}
}

// TestSendNotification_MissingID はid欠落が400になることを検証する。
func TestSendNotification_MissingID(t *testing.T) {
	router := newTestRouter(t, defaultMocks())

	req := httptest.NewRequest(http.MethodPost, "/api/send-notification", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestRefreshTimes はフェッチログ照会を検証する。
func TestRefreshTimes(t *testing.T) {
	mocks := defaultMocks()
	mocks.tenants.refreshTimesFunc = func(ctx context.Context, id string) ([]model.FetchLogEntry, error) {
		return []model.FetchLogEntry{
			{TenantID: id, DataType: "updates", LastFetchTime: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), Status: model.FetchStatusSuccess},
		}, nil
	}
	router := newTestRouter(t, mocks)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/refresh-times?tenantId=t1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data_type":"updates"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// TestRefreshTimes_MissingTenantID はtenantId欠落が400になることを検証する。
func TestRefreshTimes_MissingTenantID(t *testing.T) {
	router := newTestRouter(t, defaultMocks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/refresh-times", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestCreateSetting は通知設定の作成とバリデーションを検証する。
func TestCreateSetting(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name: "正常系",
			body: `{"name": "ops", "email": "ops@example.com", "tenants": ["t1"],
				"update_types": ["updates", "news"], "frequency": "Weekly"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name: "不正なemailは400",
			body: `{"name": "ops", "email": "not-an-email", "tenants": ["t1"],
				"update_types": ["updates"], "frequency": "Weekly"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "tenants空は400",
			body: `{"name": "ops", "email": "ops@example.com", "tenants": [],
				"update_types": ["updates"], "frequency": "Weekly"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	router := newTestRouter(t, defaultMocks())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/notification-settings", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body=%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

// TestCreateSetting_InvalidFrequency はサービス層の頻度検証エラーが
// 400にマッピングされることを検証する。
func TestCreateSetting_InvalidFrequency(t *testing.T) {
	mocks := defaultMocks()
	mocks.settings.createFunc = func(ctx context.Context, input setting.Input) (*model.NotificationSetting, error) {
		return nil, model.NewInvalidFrequencyError(input.Frequency)
	}
	router := newTestRouter(t, mocks)

	body := `{"name": "ops", "email": "ops@example.com", "tenants": ["t1"],
		"update_types": ["updates"], "frequency": "Hourly"}`
	req := httptest.NewRequest(http.MethodPost, "/api/notification-settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), model.ErrCodeInvalidFrequency) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// TestSecurityHeaders はセキュリティヘッダーが全応答に付与されることを検証する。
func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(t, defaultMocks())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
