package dbpool

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultQueryCacheTTL = time.Minute

// QueryCache stores materialized result sets keyed by caller-chosen keys.
// Writes never pass through the cache; invalidation is the caller's job.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]Row, bool, error)
	Set(ctx context.Context, key string, rows []Row, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// CachedQuery returns the cached result for key or runs the query through
// the executor and stores the rows for ttl.
func CachedQuery(ctx context.Context, e *Executor, cache QueryCache, key string, ttl time.Duration, query string, args ...any) ([]Row, error) {
	rows, ok, err := cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return rows, nil
	}
	rows, err = e.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, key, rows, ttl); err != nil {
		return nil, err
	}
	return rows, nil
}

type memoryQueryCache struct {
	cache      *gocache.Cache
	defaultTTL time.Duration
}

// NewMemoryQueryCache builds an in-process result cache.
func NewMemoryQueryCache(defaultTTL, cleanupInterval time.Duration) QueryCache {
	if defaultTTL <= 0 {
		defaultTTL = defaultQueryCacheTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &memoryQueryCache{
		cache:      gocache.New(defaultTTL, cleanupInterval),
		defaultTTL: defaultTTL,
	}
}

func (c *memoryQueryCache) Get(_ context.Context, key string) ([]Row, bool, error) {
	item, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	rows, ok := item.([]Row)
	if !ok {
		return nil, false, nil
	}
	return cloneRows(rows), true, nil
}

func (c *memoryQueryCache) Set(_ context.Context, key string, rows []Row, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.cache.Set(key, cloneRows(rows), ttl)
	return nil
}

func (c *memoryQueryCache) Invalidate(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.Delete(key)
	}
	return nil
}

// cloneRows shallow-copies each row map so cached results cannot be mutated
// by callers sharing the slice.
func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		clone := make(Row, len(row))
		for k, v := range row {
			clone[k] = v
		}
		out[i] = clone
	}
	return out
}
