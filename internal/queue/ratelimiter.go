package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a per-subscription sliding window rate limiter using
// Redis. A sorted set holds one member per recent delivery; a Lua script
// atomically cleans expired entries, checks the count, and adds new entries.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
}

// Lua script for atomic sliding window rate limiting:
// drop entries older than the window, count the rest, admit if under limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func rlKey(subscriptionID string) string {
	return fmt.Sprintf("rl:%s", subscriptionID)
}

// Allow checks if a delivery to this subscription is within its rate limit.
func (rl *RateLimiter) Allow(ctx context.Context, subscriptionID string, limitPerSecond int) bool {
	if limitPerSecond <= 0 {
		return true
	}

	key := rlKey(subscriptionID)
	now := time.Now().UnixMilli()
	window := int64(1000) // 1 second window in milliseconds
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key},
		now, window, limitPerSecond, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "subscription_id", subscriptionID)
		return true // Fail open — a Redis outage must not stall deliveries
	}

	if result == 0 {
		rl.logger.Debug("delivery rate limited",
			"subscription_id", subscriptionID,
			"limit_per_second", limitPerSecond,
		)
		return false
	}

	return true
}
