package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache stores advisory free/busy snapshots.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]Interval, bool, error)
	Set(ctx context.Context, key string, busy []Interval, ttl time.Duration) error
}

// RedisCache is a SnapshotCache backed by Redis.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisCache stores snapshots under "availability:" keys.
func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "availability:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Interval, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var busy []Interval
	if err := json.Unmarshal(raw, &busy); err != nil {
		return nil, false, err
	}
	return busy, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, busy []Interval, ttl time.Duration) error {
	raw, err := json.Marshal(busy)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err()
}
