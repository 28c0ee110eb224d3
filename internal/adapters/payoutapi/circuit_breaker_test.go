package payoutapi

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	pkgerrors "github.com/kevin07696/bikeshare-payments/pkg/errors"
	"github.com/kevin07696/bikeshare-payments/pkg/security"
)

var (
	errTransient = pkgerrors.FromStatusCode(503, "unavailable")
	errPermanent = pkgerrors.FromStatusCode(422, "iban rejected")
)

func call(cb *gobreaker.CircuitBreaker[struct{}], err error) error {
	_, got := cb.Execute(func() (struct{}, error) { return struct{}{}, err })
	return got
}

func TestCircuitBreaker_OpensAfterTransientFailures(t *testing.T) {
	cb := newCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute, MaxRequestsHalfOpen: 1}, security.NewZapLogger(zaptest.NewLogger(t)))

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, call(cb, errTransient), errTransient)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	_, err := cb.Execute(func() (struct{}, error) { called = true; return struct{}{}, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, rejectedByBreaker(err))
	assert.False(t, called)
}

func TestCircuitBreaker_PermanentFailuresDoNotTrip(t *testing.T) {
	cb := newCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, MaxRequestsHalfOpen: 1}, security.NewZapLogger(zaptest.NewLogger(t)))

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, call(cb, errPermanent), errPermanent)
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := newCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: 20 * time.Millisecond, MaxRequestsHalfOpen: 1}, security.NewZapLogger(zaptest.NewLogger(t)))

	_ = call(cb, errTransient)
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, call(cb, nil))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: 20 * time.Millisecond, MaxRequestsHalfOpen: 1}, security.NewZapLogger(zaptest.NewLogger(t)))

	_ = call(cb, errTransient)
	time.Sleep(40 * time.Millisecond)
	_ = call(cb, errTransient)

	assert.Equal(t, StateOpen, cb.State())
}
