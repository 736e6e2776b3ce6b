package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tenantman/internal/worker/syncsched"
)

// SyncTriggerInterface は同期トリガーハンドラーが必要とするインターフェース。
type SyncTriggerInterface interface {
	RunTenant(ctx context.Context, tenantID string) (*syncsched.SyncResult, error)
}

// SyncHandler はテナント同期の手動トリガーHTTPハンドラー。
type SyncHandler struct {
	trigger SyncTriggerInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(trigger SyncTriggerInterface) *SyncHandler {
	return &SyncHandler{trigger: trigger}
}

// TriggerSync は指定テナントの同期を即時実行する。
// due判定は行わず、フェッチログの更新は通常の同期と同じ規則に従う。
// POST /api/tenants/{id}/sync
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	result, err := h.trigger.RunTenant(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
