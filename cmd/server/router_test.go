package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/app"
	"github.com/kevin07696/bikeshare-payments/internal/config"
	"github.com/kevin07696/bikeshare-payments/pkg/middleware"
	"github.com/kevin07696/bikeshare-payments/pkg/resilience"
	"github.com/kevin07696/bikeshare-payments/pkg/shutdown"
)

func TestRouter_SurfaceWithoutCredentials(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{HandlerTimeout: resilience.TestTimeoutConfig().HTTPHandler},
		Admin:  config.AdminConfig{Token: "admin", CronSecret: "cron"},
	}
	deps := &app.App{Timeouts: resilience.TestTimeoutConfig()}
	tracker := shutdown.NewInFlightTracker("webhooks", zap.NewNop())
	limiter := middleware.NewRateLimiter(100, 100, zap.NewNop())
	defer limiter.Shutdown()

	router := newRouter(cfg, deps, tracker, limiter, zap.NewNop())

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/cron/health", http.StatusOK},
		{http.MethodPost, "/cron/payout-run", http.StatusUnauthorized},
		{http.MethodGet, "/admin/payouts", http.StatusUnauthorized},
		{http.MethodPost, "/admin/payouts/run", http.StatusUnauthorized},
		{http.MethodGet, "/webhooks/card", http.StatusMethodNotAllowed},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.path != "/unknown" && tt.path != "/webhooks/card" {
				assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			}
		})
	}
}

func TestRouter_WebhooksRejectedDuringShutdown(t *testing.T) {
	cfg := &config.Config{Admin: config.AdminConfig{Token: "admin"}}
	deps := &app.App{Timeouts: resilience.TestTimeoutConfig()}
	tracker := shutdown.NewInFlightTracker("webhooks", zap.NewNop())
	limiter := middleware.NewRateLimiter(100, 100, zap.NewNop())
	defer limiter.Shutdown()
	router := newRouter(cfg, deps, tracker, limiter, zap.NewNop())

	assert.NoError(t, tracker.Shutdown(t.Context()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/psp", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
