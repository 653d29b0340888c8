// Package scheduler turns a cron schedule into dispatch jobs for every RUNNING campaign.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

type CampaignLister interface {
	ListIDsByStatus(ctx context.Context, status model.CampaignStatus) ([]int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	lister  CampaignLister
	queue   queue.Queue
	timeout time.Duration
	log     *logger.Logger
}

func New(spec string, lister CampaignLister, q queue.Queue, loc *time.Location, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		lister:  lister,
		queue:   q,
		timeout: 30 * time.Second,
		log:     log,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule; the returned context is done once a running tick has finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.EnqueueRunning(ctx); err != nil {
		s.log.Error("scheduled enqueue failed", zap.Error(err))
	}
}

// EnqueueRunning publishes one job per RUNNING campaign and returns how many were queued.
func (s *Scheduler) EnqueueRunning(ctx context.Context) (int, error) {
	ids, err := s.lister.ListIDsByStatus(ctx, model.CampaignRunning)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, id := range ids {
		if err := s.queue.Publish(ctx, queue.DispatchJob{CampaignID: id}); err != nil {
			s.log.Warn("failed to enqueue campaign", zap.Int("campaign_id", id), zap.Error(err))
			continue
		}
		queued++
	}
	if queued > 0 {
		s.log.Info("queued running campaigns", zap.Int("count", queued))
	}
	return queued, nil
}
