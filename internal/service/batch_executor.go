// internal/service/batch_executor.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/provider"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

const (
	DefaultBatchSize    = 25
	DefaultSendInterval = 50 * time.Millisecond
	DefaultMaxAttempts  = 3
	DefaultClaimLease   = 10 * time.Minute
)

// Dispatcher sends one templated message; *DispatchService implements it.
type Dispatcher interface {
	SendTemplate(ctx context.Context, phone, templateName, languageCode string, components []provider.Component) (*provider.SendResult, error)
}

// BatchRunner runs one dispatch invocation for a campaign.
type BatchRunner interface {
	RunBatch(ctx context.Context, campaignID int) (*BatchResult, error)
}

type BatchResult struct {
	Processed   int                  `json:"processed"`
	Sent        int                  `json:"sent"`
	Failed      int                  `json:"failed"`
	Retried     int                  `json:"retried"`
	Contended   int                  `json:"contended,omitempty"`
	Paused      bool                 `json:"paused"`
	Completed   bool                 `json:"completed"`
	PauseReason string               `json:"pauseReason,omitempty"`
	Status      model.CampaignStatus `json:"status"`
	Message     string               `json:"message,omitempty"`
}

// HasMore reports whether another invocation right away would likely find work.
func (r *BatchResult) HasMore() bool {
	return r != nil && r.Status == model.CampaignRunning && !r.Paused && !r.Completed && r.Processed > 0
}

type ExecutorConfig struct {
	BatchSize    int
	SendInterval time.Duration
	MaxAttempts  int
	ClaimLease   time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SendInterval < 0 {
		c.SendInterval = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = DefaultClaimLease
	}
	return c
}

// BatchExecutor drives one page of PENDING recipients through the dispatcher, strictly one at a time.
// It keeps nothing between invocations; all state is in the repositories.
type BatchExecutor struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Dispatcher Dispatcher
	Config     ExecutorConfig
	Logger     *logger.Logger
}

func NewBatchExecutor(campaigns repository.CampaignRepositoryInterface, recipients repository.RecipientRepositoryInterface, dispatcher Dispatcher, cfg ExecutorConfig, log *logger.Logger) *BatchExecutor {
	if log == nil {
		log = logger.Nop()
	}
	return &BatchExecutor{
		Campaigns:  campaigns,
		Recipients: recipients,
		Dispatcher: dispatcher,
		Config:     cfg.withDefaults(),
		Logger:     log,
	}
}

func (e *BatchExecutor) RunBatch(ctx context.Context, campaignID int) (*BatchResult, error) {
	cfg := e.Config.withDefaults()
	log := e.Logger.With(zap.Int("campaign_id", campaignID))

	campaign, err := e.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Status: campaign.Status}
	if campaign.Status != model.CampaignRunning {
		result.Message = fmt.Sprintf("campaign is %s, nothing to send", campaign.Status)
		if campaign.Status == model.CampaignPaused && campaign.PausedReason != nil {
			result.PauseReason = *campaign.PausedReason
		}
		log.Info("batch skipped", zap.String("status", campaign.Status.String()))
		return result, nil
	}

	recipients, err := e.Recipients.FetchPending(ctx, campaignID, cfg.BatchSize, cfg.ClaimLease)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		changed, err := e.Campaigns.CompleteIfDrained(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		if !changed {
			// another invocation still holds claims, or already completed the campaign
			result.Message = "no claimable recipients, campaign not completed by this run"
			return result, nil
		}
		result.Completed = true
		result.Status = model.CampaignCompleted
		log.Info("✅ campaign completed", zap.Int("sent", campaign.SentCount), zap.Int("failed", campaign.FailedCount))
		return result, nil
	}

	limiter := newPacer(cfg.SendInterval)
	for _, rec := range recipients {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		claimed, err := e.Recipients.Claim(ctx, rec.ID, cfg.ClaimLease)
		if err != nil {
			return result, err
		}
		if !claimed {
			result.Contended++
			continue
		}

		res, sendErr := e.Dispatcher.SendTemplate(ctx, rec.Phone, campaign.TemplateName, campaign.LanguageCode, TemplateComponents(rec.Variables))

		if qe, ok := appErrors.AsQuotaExceeded(sendErr); ok {
			if err := e.Recipients.Release(ctx, rec.ID); err != nil {
				return result, err
			}
			reason := qe.Error()
			if _, err := e.Campaigns.Transition(ctx, campaignID, model.CampaignRunning, model.CampaignPaused, &reason); err != nil {
				return result, err
			}
			result.Paused = true
			result.PauseReason = reason
			result.Status = model.CampaignPaused
			log.Warn("⏸️ campaign paused", zap.String("reason", reason), zap.Int("processed", result.Processed))
			return result, nil
		}

		result.Processed++
		if err := e.settle(ctx, campaignID, rec, res, sendErr, cfg.MaxAttempts, result, log); err != nil {
			return result, err
		}
	}

	log.Info("batch finished",
		zap.Int("processed", result.Processed), zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed), zap.Int("retried", result.Retried))
	return result, nil
}

// settle records the outcome of one send attempt for a claimed recipient.
func (e *BatchExecutor) settle(ctx context.Context, campaignID int, rec *model.Recipient, res *provider.SendResult, sendErr error, maxAttempts int, result *BatchResult, log *logger.Logger) error {
	if sendErr == nil {
		ok, err := e.Recipients.MarkSent(ctx, rec.ID, res.MessageID())
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("claim lost before marking sent", zap.Int("recipient_id", rec.ID))
			result.Contended++
			return nil
		}
		if err := e.Campaigns.IncrementSent(ctx, campaignID); err != nil {
			return err
		}
		result.Sent++
		return nil
	}

	code := appErrors.RecipientErrorCode(sendErr)
	if pe, ok := appErrors.AsProviderError(sendErr); ok && pe.Retryable() {
		out, err := e.Recipients.RecordRetryableFailure(ctx, rec.ID, code, maxAttempts)
		if err != nil {
			return err
		}
		if out == nil {
			result.Contended++
			return nil
		}
		if out.Status == model.RecipientPending {
			result.Retried++
			log.Info("recipient queued for retry", zap.Int("recipient_id", rec.ID), zap.Int("attempts", out.Attempts), zap.String("code", code))
			return nil
		}
		return e.countFailure(ctx, campaignID, rec, code, result, log)
	}

	ok, err := e.Recipients.MarkFailed(ctx, rec.ID, code)
	if err != nil {
		return err
	}
	if !ok {
		result.Contended++
		return nil
	}
	return e.countFailure(ctx, campaignID, rec, code, result, log)
}

func (e *BatchExecutor) countFailure(ctx context.Context, campaignID int, rec *model.Recipient, code string, result *BatchResult, log *logger.Logger) error {
	if err := e.Campaigns.IncrementFailed(ctx, campaignID); err != nil {
		return err
	}
	result.Failed++
	log.Warn("recipient failed", zap.Int("recipient_id", rec.ID), zap.String("code", code))
	return nil
}

// newPacer spaces sends at least interval apart; the first send goes immediately.
func newPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

var _ BatchRunner = (*BatchExecutor)(nil)
