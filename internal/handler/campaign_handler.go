// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

type CampaignDetailsProvider interface {
	GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*service.CampaignDetails, error)
}

// CampaignHandler serves the campaign progress view
type CampaignHandler struct {
	Service CampaignDetailsProvider
	Logger  *logger.Logger
}

func NewCampaignHandler(svc CampaignDetailsProvider, log *logger.Logger) *CampaignHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CampaignHandler{Service: svc, Logger: log}
}

func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid campaign id"})
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		if appErrors.IsCampaignNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "campaign not found"})
			return
		}
		h.Logger.Error("❌ failed to fetch campaign", zap.Int("campaign_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "campaign": details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
