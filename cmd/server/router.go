package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/app"
	"github.com/kevin07696/bikeshare-payments/internal/config"
	adminHandler "github.com/kevin07696/bikeshare-payments/internal/handlers/admin"
	cronHandler "github.com/kevin07696/bikeshare-payments/internal/handlers/cron"
	webhookHandler "github.com/kevin07696/bikeshare-payments/internal/handlers/webhook"
	"github.com/kevin07696/bikeshare-payments/pkg/middleware"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
	"github.com/kevin07696/bikeshare-payments/pkg/shutdown"
)

func newRouter(
	cfg *config.Config,
	deps *app.App,
	tracker *shutdown.InFlightTracker,
	limiter *middleware.RateLimiter,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observability.HTTPMetrics)

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(tracker.Middleware)
		r.Method(http.MethodPost, "/card", webhookHandler.NewHandler(deps.Ingestor, deps.CardWebhooks, deps.Timeouts, logger))
		r.Method(http.MethodPost, "/psp", webhookHandler.NewHandler(deps.Ingestor, deps.PSPWebhooks, deps.Timeouts, logger))
		r.Method(http.MethodPost, "/payouts", webhookHandler.NewHandler(deps.Ingestor, deps.PayoutWebhooks, deps.Timeouts, logger))
	})

	headers := middleware.NewSecurityHeaders(cfg.IsProduction())
	admin := adminHandler.NewHandler(deps.Payouts, deps.Refunds, deps.Timeouts, cfg.Admin.Token, logger)
	r.Route("/admin", func(r chi.Router) {
		r.Use(headers.Middleware)
		r.Mount("/", admin.Routes())
	})

	cron := cronHandler.NewPayoutRunHandler(deps.Payouts, deps.Timeouts, logger, cfg.Admin.CronSecret)
	r.Group(func(r chi.Router) {
		r.Use(headers.Middleware)
		r.Post("/cron/payout-run", cron.ProcessPayoutRun)
		r.With(chimiddleware.Timeout(cfg.Server.HandlerTimeout)).Get("/cron/health", cron.HealthCheck)
	})

	return r
}
