package scraper

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests to one upstream at least interval apart.
// It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows one request per interval with no burst.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Acquire blocks until the next request may be sent or ctx is done.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
