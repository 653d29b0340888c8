package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/quota/quotatest"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

func TestWorker_RequeuesUntilCampaignCompletes(t *testing.T) {
	repo := NewMemRepo()
	repo.AddCampaign(campaignID, model.CampaignRunning)
	repo.AddRecipients(campaignID, 60)
	d := NewFuncDispatcher(alwaysOK)

	q := queue.NewInMemoryQueue(nil)
	q.Backoff = time.Millisecond
	worker := service.NewWorker(newExecutor(repo, d), q, nil)
	require.NoError(t, worker.Start(context.Background()))

	require.NoError(t, q.Publish(context.Background(), queue.DispatchJob{CampaignID: campaignID}))
	q.Wait()

	c := repo.Campaign(campaignID)
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.Equal(t, 60, c.SentCount)
	assert.Equal(t, 60, d.Total())
}

func TestWorker_StopsOnPause(t *testing.T) {
	repo := NewMemRepo()
	repo.AddCampaign(campaignID, model.CampaignRunning)
	repo.AddRecipients(campaignID, 40)
	store := quotatest.NewMemStore()

	q := queue.NewInMemoryQueue(nil)
	worker := service.NewWorker(pipeline(repo, store, 5), q, nil)
	require.NoError(t, worker.Start(context.Background()))

	require.NoError(t, q.Publish(context.Background(), queue.DispatchJob{CampaignID: campaignID}))
	q.Wait()

	c := repo.Campaign(campaignID)
	assert.Equal(t, model.CampaignPaused, c.Status)
	assert.Equal(t, 5, c.SentCount)
	assert.Equal(t, 35, repo.CountByStatus(campaignID, model.RecipientPending))
}

func TestWorker_DropsUnknownCampaign(t *testing.T) {
	repo := NewMemRepo()
	worker := service.NewWorker(newExecutor(repo, NewFuncDispatcher(alwaysOK)), queue.NewInMemoryQueue(nil), nil)

	err := worker.Handle(context.Background(), queue.DispatchJob{CampaignID: 99})
	assert.NoError(t, err)
}
