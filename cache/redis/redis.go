// Package redis provides a Redis backed cache.Cache. It is the implementation
// to use when stop requests must reach tasks running in other processes: the
// ownership record and stop flag live in a store every replica can see.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache adapts a go-redis client to the cache.Cache interface.
type Cache struct {
	client redis.UniversalClient
}

// New wraps an existing go-redis client. The caller owns the client's
// lifecycle.
func New(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Get implements cache.Cache. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// SetWithTTL implements cache.Cache.
func (c *Cache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
