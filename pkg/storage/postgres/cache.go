package postgres

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kellnr/kellnr/pkg/index"
)

// PrefetchCache is a two-tier cache for rendered Prefetch documents: an
// in-process LRU (fast, per-instance) backed by Redis (shared across
// instances). Both tiers are invalidated together; a miss on the LRU
// falls through to Redis before the caller recomputes from SQL.
type PrefetchCache struct {
	l1    *lru.Cache[string, index.Prefetch]
	redis *RedisClient // nil disables the L2 tier
}

// NewPrefetchCache builds a cache with an L1 of the given size. redis may
// be nil.
func NewPrefetchCache(l1Size int, redis *RedisClient) (*PrefetchCache, error) {
	if l1Size <= 0 {
		l1Size = 1024
	}
	l1, err := lru.New[string, index.Prefetch](l1Size)
	if err != nil {
		return nil, err
	}
	return &PrefetchCache{l1: l1, redis: redis}, nil
}

// Get returns the cached document for normalizedName, promoting an L2 hit
// into L1.
func (c *PrefetchCache) Get(ctx context.Context, normalizedName string) (index.Prefetch, bool) {
	if p, ok := c.l1.Get(normalizedName); ok {
		return p, true
	}
	if c.redis == nil {
		return index.Prefetch{}, false
	}
	p, err := c.redis.GetPrefetch(ctx, normalizedName)
	if err != nil || p == nil {
		return index.Prefetch{}, false
	}
	c.l1.Add(normalizedName, *p)
	return *p, true
}

// Set populates both tiers.
func (c *PrefetchCache) Set(ctx context.Context, normalizedName string, p index.Prefetch) {
	c.l1.Add(normalizedName, p)
	if c.redis != nil {
		c.redis.SetPrefetch(ctx, normalizedName, p)
	}
}

// Invalidate drops normalizedName from both tiers. Called after any
// commit that can change a package's etag.
func (c *PrefetchCache) Invalidate(ctx context.Context, normalizedName string) {
	c.l1.Remove(normalizedName)
	if c.redis != nil {
		c.redis.InvalidatePrefetch(ctx, normalizedName)
	}
}
