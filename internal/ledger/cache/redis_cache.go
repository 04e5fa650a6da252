package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisReportCache keeps report results in Redis.
type RedisReportCache struct {
	client redis.UniversalClient
}

// NewRedisReportCache wraps an existing client; the caller owns its lifecycle.
func NewRedisReportCache(client redis.UniversalClient) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func generationKey(restaurantID string) string {
	return fmt.Sprintf("reports:%s:generation", restaurantID)
}

func (c *RedisReportCache) entryKey(ctx context.Context, restaurantID, key string) (Slot, error) {
	gen, err := c.client.Get(ctx, generationKey(restaurantID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return Slot(fmt.Sprintf("reports:%s:%d:%s", restaurantID, gen, key)), nil
}

func (c *RedisReportCache) Get(ctx context.Context, restaurantID, key string, dest interface{}) (Slot, bool, error) {
	slot, err := c.entryKey(ctx, restaurantID, key)
	if err != nil {
		return "", false, err
	}

	val, err := c.client.Get(ctx, string(slot)).Bytes()
	if err == redis.Nil {
		return slot, false, nil
	}
	if err != nil {
		return slot, false, err
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return slot, false, err
	}
	return slot, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, slot Slot, value interface{}, ttl time.Duration) error {
	if slot == "" {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, string(slot), payload, ttl).Err()
}

// Invalidate bumps the restaurant's generation. Old entries are left to expire.
func (c *RedisReportCache) Invalidate(ctx context.Context, restaurantID string) error {
	return c.client.Incr(ctx, generationKey(restaurantID)).Err()
}
