package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/querysmith/internal/auth"
	"github.com/af-corp/querysmith/internal/httputil"
)

// UsageReader reports how many model-backed runs a user has made today.
type UsageReader interface {
	Used(ctx context.Context, userID string) (int64, error)
}

type usageResponse struct {
	Object    string    `json:"object"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// GetUsage handles GET /v1/usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	used, err := h.usage.Used(r.Context(), authInfo.UserID)
	if err != nil {
		slog.Error("read usage failed", "request_id", reqID, "user_id", authInfo.UserID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Usage is temporarily unavailable")
		return
	}

	limit := authInfo.Quota()
	if limit == 0 {
		limit = h.cfg().DefaultDailyQuota
	}
	now := h.now().UTC()
	httputil.WriteJSON(w, reqID, http.StatusOK, usageResponse{
		Object:    "usage",
		Used:      used,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetsAt:  time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC),
	})
}
