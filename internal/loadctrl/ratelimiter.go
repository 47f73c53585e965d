package loadctrl

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterStats contains statistics about rate limiter usage.
type RateLimiterStats struct {
	TotalAcquired int64
	CurrentQPS    float64
	AvgWaitTime   time.Duration
}

// TokenBucketLimiter caps how often requests may start, on top of
// golang.org/x/time/rate.
//
// Thread Safety: Safe for concurrent use.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
	qps     float64

	totalAcquired atomic.Int64
	totalWaitTime atomic.Int64 // nanoseconds
}

// NewTokenBucketLimiter allows qps requests per second with bursts of burst.
// burst defaults to max(1, int(qps)).
func NewTokenBucketLimiter(qps float64, burst int) *TokenBucketLimiter {
	if qps <= 0 {
		qps = 1
	}
	if burst <= 0 {
		burst = max(1, int(qps))
	}
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		qps:     qps,
	}
}

// Acquire blocks until a request slot is available or ctx is done.
func (l *TokenBucketLimiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	l.totalAcquired.Add(1)
	l.totalWaitTime.Add(int64(time.Since(start)))
	return nil
}

// CurrentRate is the configured requests per second.
func (l *TokenBucketLimiter) CurrentRate() float64 {
	return l.qps
}

// Stats returns usage statistics.
func (l *TokenBucketLimiter) Stats() RateLimiterStats {
	acquired := l.totalAcquired.Load()
	var avg time.Duration
	if acquired > 0 {
		avg = time.Duration(l.totalWaitTime.Load() / acquired)
	}
	return RateLimiterStats{
		TotalAcquired: acquired,
		CurrentQPS:    l.qps,
		AvgWaitTime:   avg,
	}
}
