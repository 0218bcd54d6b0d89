package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

const (
	DefaultMaxEntries = 1000
	DefaultTTL        = 5 * time.Minute
)

// QueryCache is an in-process LRU of unfiltered per-collection results.
// Entries expire after the TTL and are never invalidated by index changes.
type QueryCache struct {
	lru    *expirable.LRU[string, []domain.QueryResult]
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewQueryCache(maxEntries int, ttl time.Duration) *QueryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{
		lru:    expirable.NewLRU[string, []domain.QueryResult](maxEntries, nil, ttl),
		logger: slog.Default().With("component", "query_cache"),
	}
}

func (c *QueryCache) Get(_ context.Context, key port.CacheKey) ([]domain.QueryResult, bool) {
	results, ok := c.lru.Get(Key(key))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "collection", key.Collection)
	return cloneResults(results), true
}

func (c *QueryCache) Set(_ context.Context, key port.CacheKey, results []domain.QueryResult) {
	c.lru.Add(Key(key), cloneResults(results))
}

func (c *QueryCache) Len() int {
	return c.lru.Len()
}

type Stats struct {
	Hits   int64
	Misses int64
}

func (c *QueryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, port.CacheKey) ([]domain.QueryResult, bool) { return nil, false }
func (Nop) Set(context.Context, port.CacheKey, []domain.QueryResult) {}
