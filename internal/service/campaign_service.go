// internal/service/campaign_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// CampaignService serves read-only campaign views for operators.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Logger       *logger.Logger
}

type CampaignDetails struct {
	ID              int                  `json:"id"`
	Name            string               `json:"name"`
	TemplateName    string               `json:"templateName"`
	LanguageCode    string               `json:"languageCode"`
	Status          model.CampaignStatus `json:"status"`
	TotalRecipients int                  `json:"totalRecipients"`
	SentCount       int                  `json:"sentCount"`
	FailedCount     int                  `json:"failedCount"`
	PausedReason    *string              `json:"pausedReason,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       *time.Time           `json:"updatedAt,omitempty"`
	Stats           map[string]int       `json:"stats"`
}

func NewCampaignService(repo repository.CampaignRepositoryInterface, log *logger.Logger) *CampaignService {
	if log == nil {
		log = logger.Nop()
	}
	return &CampaignService{CampaignRepo: repo, Logger: log}
}

// GetCampaignDetailsWithStats returns the campaign with per-status recipient counts and a total.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.CampaignRepo.GetRecipientStats(ctx, campaignID)
	if err != nil {
		s.Logger.Error("failed to load recipient stats", zap.Int("campaign_id", campaignID), zap.Error(err))
		return nil, err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	stats["TOTAL"] = total

	return &CampaignDetails{
		ID:              campaign.ID,
		Name:            campaign.Name,
		TemplateName:    campaign.TemplateName,
		LanguageCode:    campaign.LanguageCode,
		Status:          campaign.Status,
		TotalRecipients: campaign.TotalRecipients,
		SentCount:       campaign.SentCount,
		FailedCount:     campaign.FailedCount,
		PausedReason:    campaign.PausedReason,
		CreatedAt:       campaign.CreatedAt,
		UpdatedAt:       campaign.UpdatedAt,
		Stats:           stats,
	}, nil
}
