// Package ratelimit implements a fixed-window counter limiter on redis, so
// limits survive process restarts and apply across instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces a max number of events per window for a key
type Limiter struct {
	redis  *redis.Client
	prefix string
}

// New creates a limiter with a key prefix
func New(redisClient *redis.Client, prefix string) *Limiter {
	return &Limiter{redis: redisClient, prefix: prefix}
}

// Allow counts one event against the key's current window and reports whether
// it is within the limit. The first event in a window sets the expiry.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	windowKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, time.Now().Unix()/int64(window.Seconds()))

	count, err := l.redis.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr failed: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, windowKey, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire failed: %w", err)
		}
	}
	return count <= int64(max), nil
}
