// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

// CampaignController exposes the dispatch trigger.
type CampaignController struct {
	Executor service.BatchRunner
	// Queue is optional; without it async dispatch is refused.
	Queue  queue.Queue
	Logger *logger.Logger
}

func NewCampaignController(executor service.BatchRunner, q queue.Queue, log *logger.Logger) *CampaignController {
	if log == nil {
		log = logger.Nop()
	}
	return &CampaignController{Executor: executor, Queue: q, Logger: log}
}

// Dispatch runs one batch for the campaign and reports what happened.
// With ?async=true the campaign is queued for the worker instead.
func (c *CampaignController) Dispatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid campaign id"})
		return
	}

	if r.URL.Query().Get("async") == "true" {
		c.enqueue(w, r, id)
		return
	}

	result, err := c.Executor.RunBatch(r.Context(), id)
	if err != nil {
		if appErrors.IsCampaignNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "campaignId": id, "error": "campaign not found"})
			return
		}
		c.internalError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"campaignId": id,
		"result":     result,
	})
}

func (c *CampaignController) enqueue(w http.ResponseWriter, r *http.Request, id int) {
	if c.Queue == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "campaignId": id, "error": "async dispatch not configured"})
		return
	}
	if err := c.Queue.Publish(r.Context(), queue.DispatchJob{CampaignID: id}); err != nil {
		c.internalError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "campaignId": id, "queued": true})
}

// internalError reports err and answers without leaking details.
func (c *CampaignController) internalError(w http.ResponseWriter, r *http.Request, id int, err error) {
	c.Logger.Error("dispatch failed", zap.Int("campaign_id", id), zap.String("path", r.URL.Path), zap.Error(err))
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
