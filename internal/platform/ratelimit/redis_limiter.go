package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces a distributed token bucket per key via a single
// atomic Lua script, so concurrent gateway instances share one limit.
// It fails open on Redis errors: an unavailable limiter must never take
// the whole platform down with it.
type RedisLimiter struct {
	client      redis.UniversalClient
	log         *slog.Logger
	ratePerSec  float64
	burst       int
	script      *redis.Script
	warnOnce    sync.Once
}

func NewRedisLimiter(client redis.UniversalClient, log *slog.Logger, ratePerMinute, burst int) *RedisLimiter {
	return &RedisLimiter{
		client:     client,
		log:        log,
		ratePerSec: float64(ratePerMinute) / 60.0,
		burst:      burst,
		script:     redis.NewScript(tokenBucketScript),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().Unix()
	res, err := l.script.Run(ctx, l.client,
		[]string{"ratelimit:" + key + ":tokens", "ratelimit:" + key + ":ts"},
		now, l.ratePerSec, l.burst, bucketTTL,
	).Result()
	if err != nil {
		l.warnOnce.Do(func() {
			l.log.Error("ratelimit_redis_unavailable_failing_open", "error", err)
		})
		return true, fmt.Errorf("ratelimit: redis script: %w", err)
	}

	allowed, ok := res.(int64)
	if !ok {
		return true, fmt.Errorf("ratelimit: unexpected script result %T", res)
	}
	return allowed == 1, nil
}
