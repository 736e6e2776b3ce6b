// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/tenant"
)

// validate はリクエストボディのバリデータ。ハンドラー間で共有する。
var validate = validator.New()

// TenantServiceInterface はテナントハンドラーが必要とするサービスインターフェース。
type TenantServiceInterface interface {
	List(ctx context.Context) ([]*model.Tenant, error)
	Get(ctx context.Context, id string) (*model.Tenant, error)
	Create(ctx context.Context, input tenant.CreateInput) (*model.Tenant, error)
	Update(ctx context.Context, id string, input tenant.UpdateInput) (*model.Tenant, error)
	Delete(ctx context.Context, id string) error
	RefreshTimes(ctx context.Context, id string) ([]model.FetchLogEntry, error)
}

// TenantHandler はテナント管理のHTTPハンドラー。
// syncTriggerは非アクティブ→アクティブへの切り替え時に即時同期を起動するために使う。
type TenantHandler struct {
	service     TenantServiceInterface
	syncTrigger SyncTriggerInterface
	logger      *slog.Logger
}

// NewTenantHandler はTenantHandlerを生成する。
func NewTenantHandler(service TenantServiceInterface, syncTrigger SyncTriggerInterface, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{service: service, syncTrigger: syncTrigger, logger: logger}
}

// activationSyncTimeout はアクティブ化時の即時同期の打ち切り時間。
const activationSyncTimeout = 5 * time.Minute

// tenantRequest はテナント登録・更新リクエストのボディ。
// 更新時、application_secretが空なら既存のシークレットを維持する。
type tenantRequest struct {
	Name              string `json:"name" validate:"required,max=200"`
	DirectoryID       string `json:"directory_id" validate:"required"`
	ApplicationID     string `json:"application_id" validate:"required"`
	ApplicationSecret string `json:"application_secret"`
	IsActive          bool   `json:"is_active"`
	AutoFetchEnabled  bool   `json:"auto_fetch_enabled"`
	ScheduleValue     int    `json:"schedule_value" validate:"gte=0"`
	ScheduleUnit      string `json:"schedule_unit" validate:"omitempty,oneof=hours days"`
}

// tenantResponse はテナント情報のAPIレスポンス。
// application_secretは返さない。
type tenantResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	DirectoryID      string    `json:"directory_id"`
	ApplicationID    string    `json:"application_id"`
	IsActive         bool      `json:"is_active"`
	AutoFetchEnabled bool      `json:"auto_fetch_enabled"`
	ScheduleValue    int       `json:"schedule_value"`
	ScheduleUnit     string    `json:"schedule_unit"`
	DateAdded        time.Time `json:"date_added"`
}

// refreshTimeResponse はフェッチログ1件のAPIレスポンス。
type refreshTimeResponse struct {
	DataType      string    `json:"data_type"`
	LastFetchTime time.Time `json:"last_fetch_time"`
	Status        string    `json:"status"`
}

// ListTenants はテナント一覧を返す。
// GET /api/tenants
func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]tenantResponse, len(tenants))
	for i, t := range tenants {
		results[i] = toTenantResponse(t)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetTenant はテナント詳細を返す。
// GET /api/tenants/{id}
func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

// CreateTenant はテナント登録を処理する。
// POST /api/tenants
func (h *TenantHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if req.ApplicationSecret == "" {
		writeValidationError(w, "application_secretは必須です")
		return
	}

	t, err := h.service.Create(r.Context(), tenant.CreateInput{
		Name:              req.Name,
		DirectoryID:       req.DirectoryID,
		ApplicationID:     req.ApplicationID,
		ApplicationSecret: req.ApplicationSecret,
		IsActive:          req.IsActive,
		AutoFetchEnabled:  req.AutoFetchEnabled,
		ScheduleValue:     req.ScheduleValue,
		ScheduleUnit:      req.ScheduleUnit,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTenantResponse(t))
}

// UpdateTenant はテナント更新を処理する。
// PUT /api/tenants/{id}
func (h *TenantHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	prev, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	wasActive := prev.IsActive

	t, err := h.service.Update(r.Context(), id, tenant.UpdateInput{
		Name:              req.Name,
		DirectoryID:       req.DirectoryID,
		ApplicationID:     req.ApplicationID,
		ApplicationSecret: req.ApplicationSecret,
		IsActive:          req.IsActive,
		AutoFetchEnabled:  req.AutoFetchEnabled,
		ScheduleValue:     req.ScheduleValue,
		ScheduleUnit:      req.ScheduleUnit,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 非アクティブ→アクティブの切り替え時は初回データを待たせないため
	// バックグラウンドで即時同期を起動する。
	if h.syncTrigger != nil && !wasActive && t.IsActive {
		go func(tenantID string) {
			ctx, cancel := context.WithTimeout(context.Background(), activationSyncTimeout)
			defer cancel()
			if _, err := h.syncTrigger.RunTenant(ctx, tenantID); err != nil {
				h.logger.Warn("アクティブ化時の即時同期に失敗しました",
					slog.String("tenant_id", tenantID),
					slog.String("error", err.Error()),
				)
			}
		}(t.ID)
	}

	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

// DeleteTenant はテナント削除を処理する。
// DELETE /api/tenants/{id}
func (h *TenantHandler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RefreshTimes は指定テナントのフェッチログ一覧を返す。
// GET /api/refresh-times?tenantId={id}
func (h *TenantHandler) RefreshTimes(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		writeValidationError(w, "tenantIdクエリパラメータは必須です")
		return
	}

	entries, err := h.service.RefreshTimes(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]refreshTimeResponse, len(entries))
	for i, entry := range entries {
		results[i] = refreshTimeResponse{
			DataType:      entry.DataType,
			LastFetchTime: entry.LastFetchTime,
			Status:        entry.Status,
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// toTenantResponse はドメインのTenantをAPIレスポンス型に変換する。
func toTenantResponse(t *model.Tenant) tenantResponse {
	return tenantResponse{
		ID:               t.ID,
		Name:             t.Name,
		DirectoryID:      t.DirectoryID,
		ApplicationID:    t.ApplicationID,
		IsActive:         t.IsActive,
		AutoFetchEnabled: t.AutoFetchEnabled,
		ScheduleValue:    t.ScheduleValue,
		ScheduleUnit:     string(t.ScheduleUnit),
		DateAdded:        t.DateAdded,
	}
}
