package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket per key, used when no Redis
// is configured. It does not coordinate across replicas, so a clustered
// gateway deployment should prefer RedisLimiter.
type LocalLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	ratePerSec rate.Limit
	burst      int
}

func NewLocalLimiter(ratePerMinute, burst int) *LocalLimiter {
	return &LocalLimiter{
		limiters:   make(map[string]*rate.Limiter),
		ratePerSec: rate.Limit(float64(ratePerMinute) / 60.0),
		burst:      burst,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.ratePerSec, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}
