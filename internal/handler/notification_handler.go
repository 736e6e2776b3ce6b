package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tenantman/internal/notify"
)

// DigestDispatcherInterface は通知送信ハンドラーが必要とするディスパッチャインターフェース。
type DigestDispatcherInterface interface {
	DispatchOne(ctx context.Context, settingID string, opts notify.BuildOptions) (*notify.DispatchResult, error)
}

// NotificationHandler は手動通知送信のHTTPハンドラー。
type NotificationHandler struct {
	dispatcher DigestDispatcherInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(dispatcher DigestDispatcherInterface) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

// sendNotificationRequest は手動送信リクエストのボディ。
// checkPeriodは省略時true（設定の頻度に応じた時間窓で集約する）。
// falseを明示した場合は頻度を無視して7日窓で集約する。
// forceExactDateFilterがtrueの場合は時間窓の下限を日の0時に切り捨てる。
type sendNotificationRequest struct {
	ID                   string `json:"id" validate:"required"`
	CheckPeriod          *bool  `json:"checkPeriod"`
	ForceExactDateFilter bool   `json:"forceExactDateFilter"`
}

// SendNotification は指定設定のダイジェストを即時送信する。
// POST /api/send-notification
func (h *NotificationHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	checkPeriod := true
	if req.CheckPeriod != nil {
		checkPeriod = *req.CheckPeriod
	}

	result, err := h.dispatcher.DispatchOne(r.Context(), req.ID, notify.BuildOptions{
		CheckPeriod:   checkPeriod,
		ExactBoundary: req.ForceExactDateFilter,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
