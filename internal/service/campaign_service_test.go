package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

func TestGetCampaignDetailsWithStats(t *testing.T) {
	repo := NewMemRepo()
	repo.AddCampaign(campaignID, model.CampaignRunning)
	ids := repo.AddRecipients(campaignID, 4)
	r := repo.Recipient(ids[0])
	r.Status = model.RecipientSent
	repo.SetRecipient(r)
	r = repo.Recipient(ids[1])
	r.Status = model.RecipientFailed
	repo.SetRecipient(r)

	svc := service.NewCampaignService(repo, nil)
	details, err := svc.GetCampaignDetailsWithStats(context.Background(), campaignID)

	require.NoError(t, err)
	assert.Equal(t, campaignID, details.ID)
	assert.Equal(t, model.CampaignRunning, details.Status)
	assert.Equal(t, 4, details.TotalRecipients)
	assert.Equal(t, map[string]int{"PENDING": 2, "SENDING": 0, "SENT": 1, "FAILED": 1, "TOTAL": 4}, details.Stats)
}

func TestGetCampaignDetailsWithStats_NotFound(t *testing.T) {
	svc := service.NewCampaignService(NewMemRepo(), nil)
	_, err := svc.GetCampaignDetailsWithStats(context.Background(), 1)
	assert.True(t, appErrors.IsCampaignNotFound(err))
}
