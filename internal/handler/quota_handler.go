package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/provider"
)

type QuotaAdmin interface {
	Limit() int
	GetCurrentCount(ctx context.Context) (int, error)
	GetRemainingSlots(ctx context.Context) (int, error)
	CloseConversation(ctx context.Context, phone string) (bool, error)
}

// QuotaHandler exposes today's conversation quota to operators.
type QuotaHandler struct {
	Guard  QuotaAdmin
	Logger *logger.Logger
}

func NewQuotaHandler(guard QuotaAdmin, log *logger.Logger) *QuotaHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &QuotaHandler{Guard: guard, Logger: log}
}

// GetQuota handles GET /quota
func (h *QuotaHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	count, err := h.Guard.GetCurrentCount(r.Context())
	if err != nil {
		h.storeError(w, "read quota count", err)
		return
	}
	remaining, err := h.Guard.GetRemainingSlots(r.Context())
	if err != nil {
		h.storeError(w, "read remaining slots", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"currentCount":   count,
		"limit":          h.Guard.Limit(),
		"remainingSlots": remaining,
	})
}

// CloseConversation handles POST /conversations/{phone}/close
func (h *QuotaHandler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	phone, err := provider.NormalizePhone(chi.URLParam(r, "phone"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid phone"})
		return
	}
	closed, err := h.Guard.CloseConversation(r.Context(), phone)
	if err != nil {
		h.storeError(w, "close conversation", err)
		return
	}
	if !closed {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "phone": phone, "error": "no open conversation"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "phone": phone, "closed": true})
}

func (h *QuotaHandler) storeError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("quota store error", zap.String("op", op), zap.Error(err))
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "quota store unavailable"})
}
