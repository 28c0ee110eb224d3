package payoutapi

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	adapterports "github.com/kevin07696/bikeshare-payments/internal/adapters/ports"
	pkgerrors "github.com/kevin07696/bikeshare-payments/pkg/errors"
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

var (
	// ErrCircuitOpen is returned without calling the API while the circuit is open
	ErrCircuitOpen = gobreaker.ErrOpenState
	// ErrTooManyRequests is returned when the half-open trial slots are taken
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive transient failures before opening
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a trial request is allowed
	Timeout time.Duration
	// MaxRequestsHalfOpen trial requests must succeed before the circuit closes again
	MaxRequestsHalfOpen uint32
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// newCircuitBreaker trips only on transient failures. Permanent rejections
// (4xx) say nothing about API health and count as successes.
func newCircuitBreaker(config CircuitBreakerConfig, logger adapterports.Logger) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "payout_api",
		MaxRequests: config.MaxRequestsHalfOpen,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !pkgerrors.IsRetriable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				adapterports.String("breaker", name),
				adapterports.String("from", from.String()),
				adapterports.String("to", to.String()),
			)
		},
	})
}

// rejectedByBreaker reports errors produced by the breaker itself, not the API
func rejectedByBreaker(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}
