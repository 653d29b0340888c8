package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/app"
	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/scheduler"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l, _ := logger.NewLogger()
		l.Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logger.ForEnv(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	flush := app.InitSentry(cfg.Sentry, cfg.Env, log)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	q, closeQueue := openQueue(cfg, log)
	defer closeQueue()

	worker := service.NewWorker(a.Executor, q, log.With(zap.String("component", "worker")))
	if err := worker.Start(ctx); err != nil {
		log.Fatal("failed to register consumer", zap.Error(err))
	}

	if cfg.Queue.ScheduleSpec != "" {
		loc, _ := cfg.Quota.Location()
		sched, err := scheduler.New(cfg.Queue.ScheduleSpec, a.Campaigns, q, loc, log.With(zap.String("component", "scheduler")))
		if err != nil {
			log.Fatal("invalid schedule", zap.Error(err))
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()

		// pick up campaigns left RUNNING by a previous process without waiting a full tick
		if _, err := sched.EnqueueRunning(ctx); err != nil {
			log.Warn("initial enqueue failed", zap.Error(err))
		}
	}

	log.Info("worker running, waiting for dispatch jobs...", zap.String("queue", cfg.Queue.Name))
	<-ctx.Done()
	log.Info("worker stopping")
}

// openQueue prefers RabbitMQ and falls back to an in-process queue so a single worker can run alone.
func openQueue(cfg *config.Config, log *logger.Logger) (queue.Queue, func()) {
	if cfg.Queue.AMQPURL != "" {
		aq, err := queue.DialAMQP(cfg.Queue.AMQPURL, cfg.Queue.Name, log)
		if err == nil {
			return aq, func() { aq.Close() }
		}
		log.Warn("⚠️ rabbitmq unavailable, using in-memory queue", zap.Error(err))
	}
	mq := queue.NewInMemoryQueue(log)
	return mq, func() {}
}
