package service

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

// Worker runs one batch per dispatch job and queues the campaign again while it has work left.
type Worker struct {
	Executor BatchRunner
	Queue    queue.Queue
	Logger   *logger.Logger
}

func NewWorker(executor BatchRunner, q queue.Queue, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{Executor: executor, Queue: q, Logger: log}
}

// Start subscribes the worker to the dispatch queue.
func (w *Worker) Start(ctx context.Context) error {
	return w.Queue.Subscribe(ctx, w.Handle)
}

// Handle processes a single job. Errors make the queue redeliver it.
func (w *Worker) Handle(ctx context.Context, job queue.DispatchJob) error {
	log := w.Logger.With(zap.Int("campaign_id", job.CampaignID))

	result, err := w.Executor.RunBatch(ctx, job.CampaignID)
	if appErrors.IsCampaignNotFound(err) {
		log.Warn("dropping job for unknown campaign")
		return nil
	}
	if err != nil {
		log.Error("batch failed", zap.Error(err))
		return err
	}
	if !result.HasMore() {
		log.Debug("no follow-up batch", zap.String("status", result.Status.String()),
			zap.Bool("paused", result.Paused), zap.Bool("completed", result.Completed))
		return nil
	}
	if err := w.Queue.Publish(ctx, queue.DispatchJob{CampaignID: job.CampaignID}); err != nil {
		// the scheduler picks RUNNING campaigns up again on its next tick
		log.Warn("failed to queue next batch", zap.Error(err))
	}
	return nil
}
