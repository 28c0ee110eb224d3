package shutdown

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// InFlightTracker tracks in-flight webhook processing so graceful shutdown
// waits for it instead of cutting a database transaction short
type InFlightTracker struct {
	wg         sync.WaitGroup
	mu         sync.RWMutex
	shutdownCh chan struct{}
	logger     *zap.Logger
	name       string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{
		shutdownCh: make(chan struct{}),
		logger:     logger,
		name:       name,
	}
}

// Add increments the in-flight work counter.
// Returns false if shutdown has been initiated (don't start new work)
func (ift *InFlightTracker) Add() bool {
	ift.mu.RLock()
	defer ift.mu.RUnlock()
	select {
	case <-ift.shutdownCh:
		return false
	default:
		ift.wg.Add(1)
		return true
	}
}

// Done decrements the in-flight work counter
func (ift *InFlightTracker) Done() {
	ift.wg.Done()
}

// Shutdown stops accepting work and waits for in-flight work to complete.
// Returns ctx.Err() if ctx ends first.
func (ift *InFlightTracker) Shutdown(ctx context.Context) error {
	ift.mu.Lock()
	select {
	case <-ift.shutdownCh:
	default:
		close(ift.shutdownCh)
	}
	ift.mu.Unlock()

	ift.logger.Info("Waiting for in-flight work to complete",
		zap.String("tracker", ift.name),
	)

	done := make(chan struct{})
	go func() {
		ift.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ift.logger.Info("All in-flight work completed",
			zap.String("tracker", ift.name),
		)
		return nil
	case <-ctx.Done():
		ift.logger.Warn("Shutdown timeout - some work may be incomplete",
			zap.String("tracker", ift.name),
		)
		return ctx.Err()
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (ift *InFlightTracker) IsShuttingDown() bool {
	select {
	case <-ift.shutdownCh:
		return true
	default:
		return false
	}
}

// RunWithContext executes fn as in-flight work.
// Returns false if shutdown is in progress and fn did not run.
func (ift *InFlightTracker) RunWithContext(ctx context.Context, fn func(context.Context)) bool {
	if !ift.Add() {
		return false
	}
	defer ift.Done()

	fn(ctx)
	return true
}

// Middleware answers 503 once shutdown started so the sender redelivers to
// another instance, and tracks every request it lets through
func (ift *InFlightTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ift.Add() {
			w.Header().Set("Retry-After", "5")
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		defer ift.Done()
		next.ServeHTTP(w, r)
	})
}
