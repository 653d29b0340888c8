package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

// DispatchJob asks a worker to run one batch for a campaign.
type DispatchJob struct {
	CampaignID int `json:"campaign_id"`
}

type Handler func(ctx context.Context, job DispatchJob) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, job DispatchJob) error
	Subscribe(ctx context.Context, handler Handler) error
}

// InMemoryQueue delivers jobs to subscribers in-process with retry.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   []Handler
	wg         sync.WaitGroup
	MaxRetries int
	Backoff    time.Duration
	log        *logger.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *logger.Logger) *InMemoryQueue {
	if log == nil {
		log = logger.Nop()
	}
	return &InMemoryQueue{MaxRetries: 3, Backoff: 500 * time.Millisecond, log: log}
}

// Publish hands the job to every subscriber
func (q *InMemoryQueue) Publish(ctx context.Context, job DispatchJob) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for dispatch jobs")
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(context.WithoutCancel(ctx), handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, job DispatchJob) {
	defer q.wg.Done()
	for attempt := 0; attempt <= q.MaxRetries; attempt++ {
		err := handler(ctx, job)
		if err == nil {
			return
		}
		q.log.Warn("job failed", zap.Int("campaign_id", job.CampaignID),
			zap.Int("attempt", attempt+1), zap.Int("max_retries", q.MaxRetries), zap.Error(err))
		if attempt == q.MaxRetries {
			q.log.Error("job permanently failed", zap.Int("campaign_id", job.CampaignID))
			return
		}
		// linear backoff before retry
		time.Sleep(time.Duration(attempt+1) * q.Backoff)
	}
}

// Subscribe adds a handler
func (q *InMemoryQueue) Subscribe(_ context.Context, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
	return nil
}

// Wait blocks until every published job, including ones published by handlers, has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

var _ Queue = (*InMemoryQueue)(nil)
