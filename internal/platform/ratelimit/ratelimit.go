// Package ratelimit implements the request-level throttling spec.md §8
// requires at the edge gateway: a distributed token bucket backed by
// Redis when REDIS_URL is configured, falling back to an in-process
// limiter otherwise so the gateway still degrades gracefully offline.
package ratelimit

import "context"

// Limiter reports whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NoopLimiter always allows, for deployments that disable rate limiting
// via RATE_LIMIT_ENABLED=false.
type NoopLimiter struct{}

func (NoopLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

// tokenBucketScript atomically refills and consumes from a bucket stored
// under "ratelimit:{key}:tokens"/"ratelimit:{key}:ts", grounded on
// piwi3910-netweave's checkLimit Lua script.
const tokenBucketScript = `
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call('GET', tokens_key))
if tokens == nil then
	tokens = burst
end
local last_update = tonumber(redis.call('GET', ts_key))
if last_update == nil then
	last_update = now
end

local elapsed = math.max(0, now - last_update)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
end

redis.call('SET', tokens_key, tokens, 'EX', ttl)
redis.call('SET', ts_key, now, 'EX', ttl)

return allowed
`

// bucketTTL bounds how long an idle key's bucket lingers in Redis, per
// spec.md's 60-second rolling window.
const bucketTTL = 60 * 2
