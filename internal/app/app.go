// Package app wires the dispatch pipeline from configuration; both binaries share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/provider"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *sql.DB

	Campaigns  *repository.CampaignRepository
	Recipients *repository.RecipientRepository
	Guard      *quota.Guard
	Dispatch   *service.DispatchService
	Executor   *service.BatchExecutor
	Campaign   *service.CampaignService

	closers []func() error
}

// New opens the database and quota store and assembles the services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, DB: conn}
	a.closers = append(a.closers, conn.Close)

	store, err := a.quotaStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	loc, err := cfg.Quota.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Campaigns = repository.NewCampaignRepository(conn)
	a.Recipients = repository.NewRecipientRepository(conn)
	a.Guard = quota.NewGuard(store, cfg.Quota.DailyLimit, log.With(zap.String("component", "quota")), quota.WithLocation(loc))

	sender := provider.NewSender(cfg.Provider, &http.Client{Timeout: cfg.Provider.Timeout}, log.With(zap.String("component", "provider")))
	a.Dispatch = service.NewDispatchService(a.Guard, sender, log.With(zap.String("component", "dispatch")))
	a.Executor = service.NewBatchExecutor(a.Campaigns, a.Recipients, a.Dispatch, service.ExecutorConfig{
		BatchSize:    cfg.Dispatch.BatchSize,
		SendInterval: cfg.Dispatch.SendInterval,
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
		ClaimLease:   cfg.Dispatch.ClaimLease,
	}, log.With(zap.String("component", "executor")))
	a.Campaign = service.NewCampaignService(a.Campaigns, log)

	log.Info("dispatch pipeline ready",
		zap.String("quota_store", cfg.Quota.Store),
		zap.Int("daily_limit", cfg.Quota.DailyLimit),
		zap.Bool("simulated", cfg.Provider.Simulate()))
	return a, nil
}

func (a *App) quotaStore(ctx context.Context) (quota.Store, error) {
	switch a.Config.Quota.Store {
	case "redis":
		rs, err := quota.NewRedisStoreFromURL(ctx, a.Config.Quota.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	case "postgres", "":
		return repository.NewConversationRepository(a.DB), nil
	default:
		return nil, fmt.Errorf("unknown quota store %q", a.Config.Quota.Store)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// InitSentry enables error reporting when a DSN is configured. The returned func flushes pending events.
func InitSentry(cfg config.SentryConfig, env string, log *logger.Logger) func() {
	if cfg.DSN == "" {
		return func() {}
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		AttachStacktrace: true,
	}); err != nil {
		log.Warn("sentry init failed, error reporting disabled", zap.Error(err))
		return func() {}
	}
	log.Info("sentry initialized", zap.String("env", env))
	return func() { sentry.Flush(2 * time.Second) }
}
