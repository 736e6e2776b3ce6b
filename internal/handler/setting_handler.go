package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tenantman/internal/model"
	"github.com/hitoshi/tenantman/internal/setting"
)

// SettingServiceInterface は通知設定ハンドラーが必要とするサービスインターフェース。
type SettingServiceInterface interface {
	List(ctx context.Context) ([]*model.NotificationSetting, error)
	Get(ctx context.Context, id string) (*model.NotificationSetting, error)
	Create(ctx context.Context, input setting.Input) (*model.NotificationSetting, error)
	Update(ctx context.Context, id string, input setting.Input) (*model.NotificationSetting, error)
	Delete(ctx context.Context, id string) error
}

// SettingHandler は通知設定のHTTPハンドラー。
type SettingHandler struct {
	service SettingServiceInterface
}

// NewSettingHandler はSettingHandlerを生成する。
func NewSettingHandler(service SettingServiceInterface) *SettingHandler {
	return &SettingHandler{service: service}
}

// settingRequest は通知設定の作成・更新リクエストのボディ。
type settingRequest struct {
	Name       string   `json:"name" validate:"required,max=200"`
	Email      string   `json:"email" validate:"required,email"`
	TenantIDs  []string `json:"tenants" validate:"required,min=1"`
	Categories []string `json:"update_types" validate:"required,min=1"`
	Frequency  string   `json:"frequency" validate:"required"`
}

// settingResponse は通知設定のAPIレスポンス。
type settingResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	TenantIDs  []string  `json:"tenants"`
	Categories []string  `json:"update_types"`
	Frequency  string    `json:"frequency"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListSettings は通知設定一覧を返す。
// GET /api/notification-settings
func (h *SettingHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]settingResponse, len(settings))
	for i, s := range settings {
		results[i] = toSettingResponse(s)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetSetting は通知設定詳細を返す。
// GET /api/notification-settings/{id}
func (h *SettingHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingResponse(s))
}

// CreateSetting は通知設定の作成を処理する。
// POST /api/notification-settings
func (h *SettingHandler) CreateSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	s, err := h.service.Create(r.Context(), setting.Input{
		Name:       req.Name,
		Email:      req.Email,
		TenantIDs:  req.TenantIDs,
		Categories: req.Categories,
		Frequency:  req.Frequency,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSettingResponse(s))
}

// UpdateSetting は通知設定の更新を処理する。
// PUT /api/notification-settings/{id}
func (h *SettingHandler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	s, err := h.service.Update(r.Context(), id, setting.Input{
		Name:       req.Name,
		Email:      req.Email,
		TenantIDs:  req.TenantIDs,
		Categories: req.Categories,
		Frequency:  req.Frequency,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingResponse(s))
}

// DeleteSetting は通知設定の削除を処理する。
// DELETE /api/notification-settings/{id}
func (h *SettingHandler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toSettingResponse はドメインのNotificationSettingをAPIレスポンス型に変換する。
func toSettingResponse(s *model.NotificationSetting) settingResponse {
	categories := make([]string, len(s.Categories))
	for i, c := range s.Categories {
		categories[i] = string(c)
	}
	return settingResponse{
		ID:         s.ID,
		Name:       s.Name,
		Email:      s.Email,
		TenantIDs:  s.TenantIDs,
		Categories: categories,
		Frequency:  string(s.Frequency),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}
