package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup records dispatched opportunity IDs with SETNX so that several
// processes sharing one Redis dispatch each opportunity at most once.
type RedisDedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedup(c *Client, ttl time.Duration) *RedisDedup {
	return &RedisDedup{rdb: c.rdb, ttl: ttl}
}

func dedupKey(id string) string {
	return "dispatched:" + id
}

// Claim returns true the first time id is seen within the TTL.
func (d *RedisDedup) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKey(id), time.Now().UnixNano(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", id, err)
	}
	return ok, nil
}
