// Package cache wraps redis as the read-through TTL cache collaborator.
// A missing key is a miss, never an error.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a key→string cache with TTLs and point/pattern invalidation
type Cache struct {
	redis *redis.Client
}

// New creates a cache backed by the given redis client
func New(redisClient *redis.Client) *Cache {
	return &Cache{redis: redisClient}
}

// Get returns the cached value and whether it was present
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache get failed: %w", err)
	}
	return val, true, nil
}

// Set stores a value with a TTL
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete removes a single key
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// DeletePattern removes all keys matching a glob pattern via SCAN
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
