package dbpool

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient captures the subset of redis.Client used by the query cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisQueryCache struct {
	client     RedisClient
	defaultTTL time.Duration
	prefix     string
}

// NewRedisQueryCache builds a result cache shared across processes. Rows
// round-trip through JSON, so numeric column values come back as float64.
func NewRedisQueryCache(client RedisClient, defaultTTL time.Duration, prefix string) QueryCache {
	if defaultTTL <= 0 {
		defaultTTL = defaultQueryCacheTTL
	}
	if prefix == "" {
		prefix = "dbpool"
	}
	return &redisQueryCache{
		client:     client,
		defaultTTL: defaultTTL,
		prefix:     prefix,
	}
}

func (c *redisQueryCache) Get(ctx context.Context, key string) ([]Row, bool, error) {
	if c.client == nil {
		return nil, false, errors.New("redis query cache client unavailable")
	}
	body, err := c.client.Get(ctx, c.cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func (c *redisQueryCache) Set(ctx context.Context, key string, rows []Row, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("redis query cache client unavailable")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.cacheKey(key), body, ttl).Err()
}

func (c *redisQueryCache) Invalidate(ctx context.Context, keys ...string) error {
	if c.client == nil {
		return errors.New("redis query cache client unavailable")
	}
	if len(keys) == 0 {
		return nil
	}
	cacheKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		cacheKeys = append(cacheKeys, c.cacheKey(key))
	}
	return c.client.Del(ctx, cacheKeys...).Err()
}

func (c *redisQueryCache) cacheKey(key string) string {
	return c.prefix + ":" + key
}
