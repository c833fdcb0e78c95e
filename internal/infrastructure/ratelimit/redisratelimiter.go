package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/micropaywall/paygate/internal/shared/biztime"
)

const keyPrefix = "paygate:ratelimit"

type RedisRateLimiter struct {
	client redis.UniversalClient
	clock  biztime.Clock
}

func NewRedisRateLimiter(client redis.UniversalClient, clock biztime.Clock) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		clock:  biztime.OrDefault(clock),
	}
}

// Allow increments the counter of the window containing now. The counter
// expires with its window so Redis holds at most one key per client and limit.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	if limit.Requests <= 0 || limit.Window <= 0 {
		return Decision{Allowed: true, Limit: limit.Requests}, nil
	}

	now := l.clock()
	windowStart := now.Truncate(limit.Window)
	resetAfter := windowStart.Add(limit.Window).Sub(now)
	redisKey := l.getKey(key, limit.Window, windowStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, limit.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := incr.Val()
	remaining := int64(limit.Requests) - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    count <= int64(limit.Requests),
		Limit:      limit.Requests,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}

// Reset clears every window counter of key.
func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, key)

	iter := l.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := l.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}
	return nil
}

func (l *RedisRateLimiter) getKey(identifier string, window time.Duration, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, identifier, window, windowStart.Unix())
}
