package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polycross/relaybot/internal/domain"
)

// slidingWindowLua atomically prunes expired entries from a sorted set,
// counts the remainder against the limit, and records the new request when
// admitted. Returns {allowed, current_count}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
    redis.call('PEXPIRE', key, math.ceil(window / 1000))
    return {1, count + 1}
end
return {0, count}
`

// waitPollInterval is how often Wait re-probes the window.
const waitPollInterval = 100 * time.Millisecond

// RateLimiter implements domain.RateLimiter with a Redis-backed sliding
// window, for deployments running several bot replicas against one shared
// oracle budget. The minimum inter-request spacing is enforced here too so
// replicas collectively respect it.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script

	limit      int
	window     time.Duration
	minSpacing time.Duration
}

// NewRateLimiter creates a RateLimiter with the given shared budget.
// Non-positive arguments fall back to 60 requests / 60s / 1.1s.
func NewRateLimiter(c *Client, limit int, window, minSpacing time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if minSpacing <= 0 {
		minSpacing = 1100 * time.Millisecond
	}
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		limit:         limit,
		window:        window,
		minSpacing:    minSpacing,
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

func spacingKey(key string) string {
	return "ratelimit:spacing:" + key
}

// Allow checks whether a request for the given key is permitted under the
// sliding window. On true the request has been counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()
	windowMicro := window.Microseconds()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		now,
		windowMicro,
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until the shared budget admits a request for key. The spacing
// gate uses SET NX with a TTL equal to the minimum spacing, so whichever
// replica claims it next owns the slot.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		default:
		}

		claimed, err := rl.rdb.SetNX(ctx, spacingKey(key), 1, rl.minSpacing).Result()
		if err != nil {
			return fmt.Errorf("redis: rate limit spacing %s: %w", key, err)
		}

		if claimed {
			allowed, err := rl.Allow(ctx, key, rl.limit, rl.window)
			if err != nil {
				return err
			}
			if allowed {
				return nil
			}
			// Window exhausted: give the spacing slot back for the next probe.
			_ = rl.rdb.Del(ctx, spacingKey(key)).Err()
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
