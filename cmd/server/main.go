package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/bikeshare-payments/internal/app"
	"github.com/kevin07696/bikeshare-payments/internal/config"
	"github.com/kevin07696/bikeshare-payments/pkg/middleware"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
	"github.com/kevin07696/bikeshare-payments/pkg/shutdown"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger config lives in cfg; fall back to a production logger for this one line
		zap.Must(zap.NewProduction()).Fatal("Failed to load configuration", zap.Error(err))
	}

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bikeshare payments service",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
	)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.Build(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	deps.DB.StartPoolMonitoring(monitorCtx, 30*time.Second)

	healthChecker := observability.NewHealthChecker(deps.DB.Pool())
	healthChecker.AddDependency("payout_api", deps.PayoutAPI.Healthy)
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)

	webhookTracker := shutdown.NewInFlightTracker("webhooks", logger)
	rateLimiter := middleware.NewRateLimiter(cfg.Webhook.RateLimitRPS, cfg.Webhook.RateLimitBurst, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           newRouter(cfg, deps, webhookTracker, rateLimiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Steps run last-registered first: stop accepting, drain webhooks, then
	// release the pool.
	manager := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	manager.RegisterNoErr("database", deps.Close)
	manager.RegisterNoErr("pool_monitor", stopMonitor)
	manager.RegisterNoErr("rate_limiter", rateLimiter.Shutdown)
	manager.Register("webhooks", webhookTracker.Shutdown)
	manager.RegisterHTTPServer("metrics", metricsServer)
	manager.RegisterHTTPServer("http", server)

	if errs := manager.WaitForShutdown(); len(errs) > 0 {
		for name, err := range errs {
			logger.Error("Shutdown step failed", zap.String("component", name), zap.Error(err))
		}
	}
	logger.Info("Server stopped")
}

// initLogger initializes the logger
func initLogger(cfg *config.Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() && !cfg.Logger.Development {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
