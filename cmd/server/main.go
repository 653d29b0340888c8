// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/app"
	"github.com/unclebandit/campaign-dispatch/internal/auth"
	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/controller"
	"github.com/unclebandit/campaign-dispatch/internal/handler"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger config depends on cfg, so fall back to a production logger here
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

	// async dispatch is optional; the server still runs batches inline without a broker
	var q queue.Queue
	if cfg.Queue.AMQPURL != "" {
		aq, err := queue.DialAMQP(cfg.Queue.AMQPURL, cfg.Queue.Name, log)
		if err != nil {
			log.Warn("⚠️ rabbitmq unavailable, async dispatch disabled", zap.Error(err))
		} else {
			defer aq.Close()
			q = aq
		}
	}

	if cfg.Admin.JWTSecret == "" {
		log.Warn("⚠️ ADMIN_JWT_SECRET not set, all operator endpoints will answer 401")
	}

	campaignController := controller.NewCampaignController(a.Executor, q, log)
	campaignHandler := handler.NewCampaignHandler(a.Campaign, log)
	quotaHandler := handler.NewQuotaHandler(a.Guard, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(cfg.Admin.JWTSecret))

		// Campaign routes
		r.Post("/campaigns/{id}/dispatch", campaignController.Dispatch)
		r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandlerWithStats)

		// Quota routes
		r.Get("/quota", quotaHandler.GetQuota)
		r.Post("/conversations/{phone}/close", quotaHandler.CloseConversation)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 server running", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
