package soilweb

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a rate.Limiter that speeds up by 20% per success (up to
// 2x the initial rate) and halves on a 429 (down to a quarter).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at perSecond events/s.
func NewAdaptiveLimiter(perSecond rate.Limit, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(perSecond, burst),
		initial: perSecond,
		current: perSecond,
	}
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(min(a.Limit()*1.2, a.initial*2))
}

// OnRateLimit lowers the rate after the service answered 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	next := max(a.Limit()*0.5, a.initial/4)
	a.set(next)
	zap.L().Warn("soilweb: rate limited, slowing down", zap.Float64("rate", float64(next)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = r
	a.limiter.SetLimit(r)
}
