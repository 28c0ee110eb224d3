package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the application's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (60s) / Payout run (10m)
//	  ↓
//	Webhook processing (20s)
//	  ↓
//	Payout API (30s per call, status retries included)
//	  ↓
//	Database Query (2s/5s/30s - based on complexity)
//
// Each layer completes before its parent times out.
type TimeoutConfig struct {
	// Handler layer timeouts
	HTTPHandler time.Duration // Overall request timeout (default: 60s)
	PayoutRun   time.Duration // Period run across all scopes (default: 10 minutes)

	// Service layer timeouts
	WebhookProcessing time.Duration // One webhook, detached from the request (default: 20s)

	// External API timeouts (adapters)
	ExternalAPI time.Duration // Payout API calls (default: 30s)
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:       60 * time.Second,
		PayoutRun:         10 * time.Minute,
		WebhookProcessing: 20 * time.Second,
		ExternalAPI:       30 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:       5 * time.Second,
		PayoutRun:         30 * time.Second,
		WebhookProcessing: 2 * time.Second,
		ExternalAPI:       2 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// PayoutRunContext creates a context with timeout for a payout period run
func (tc *TimeoutConfig) PayoutRunContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.PayoutRun)
}

// WebhookContext detaches from the request so a client disconnect cannot
// interrupt an event half way, and bounds the work with its own timeout.
func (tc *TimeoutConfig) WebhookContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.WebhookProcessing)
}

// ExternalAPIContext creates a context for external API calls
func (tc *TimeoutConfig) ExternalAPIContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ExternalAPI)
}
