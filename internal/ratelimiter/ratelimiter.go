package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket in front of the SMS gateway. Burst is set equal
// to the rate so no extra burst capacity accumulates beyond the configured
// per-second maximum.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter granting ratePerSec sends per second.
func New(ratePerSec int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until the limiter grants a token. Called by each delivery
// worker immediately before invoking the gateway. Returns a non-nil error
// only if ctx is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
