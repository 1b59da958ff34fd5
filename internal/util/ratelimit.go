package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outbound broker requests. It only ever waits; it never
// retries a failed call.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter that allows perSecond operations per
// second with a burst of one. A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/perSecond)), 1),
	}
}

// Wait blocks until a rate-limit token is available or the context is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
