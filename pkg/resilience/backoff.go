package resilience

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffConfig describes a capped exponential backoff with jitter.
// go-retry backoffs are stateful, so New builds a fresh one per retry loop.
type BackoffConfig struct {
	Base          time.Duration
	Max           time.Duration
	JitterPercent uint64
	MaxRetries    uint64
}

// PayoutStatusBackoff is used for read-only payout status queries.
// Operators wait on these, so the cap is short.
//
// Retry sequence (±10% jitter): ~250ms, ~500ms, ~1s, then ~2s capped.
func PayoutStatusBackoff(maxRetries uint64) BackoffConfig {
	return BackoffConfig{
		Base:          250 * time.Millisecond,
		Max:           2 * time.Second,
		JitterPercent: 10,
		MaxRetries:    maxRetries,
	}
}

// New returns a go-retry backoff that stops after MaxRetries retries
func (c BackoffConfig) New() retry.Backoff {
	b := retry.NewExponential(c.Base)
	b = retry.WithCappedDuration(c.Max, b)
	if c.JitterPercent > 0 {
		b = retry.WithJitterPercent(c.JitterPercent, b)
	}
	return retry.WithMaxRetries(c.MaxRetries, b)
}
