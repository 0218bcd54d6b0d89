package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

func sampleResults() []domain.QueryResult {
	return []domain.QueryResult{
		{Content: "first", RelevanceScore: 0.9, CollectionName: "docs", SourceType: domain.SourceHybrid},
		{Content: "second", RelevanceScore: 0.4, CollectionName: "docs", SourceType: domain.SourceVector},
	}
}

func TestQueryCache_SetThenGet(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(10, time.Minute)
	key := port.CacheKey{Collection: "docs", Query: "rent deposit", K: 5, Fusion: domain.FusionRRF}

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, sampleResults())
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, sampleResults(), got)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestQueryCache_FilterIsPartOfKey(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(10, time.Minute)
	plain := port.CacheKey{Collection: "docs", Query: "rent", K: 5}
	filtered := port.CacheKey{Collection: "docs", Query: "rent", K: 5, Filters: domain.Filter{"source": "a.pdf"}}

	c.Set(ctx, filtered, sampleResults())
	_, ok := c.Get(ctx, plain)
	assert.False(t, ok, "unfiltered query must not see filtered results")

	c.Set(ctx, plain, sampleResults()[:1])
	got, ok := c.Get(ctx, filtered)
	require.True(t, ok)
	assert.Len(t, got, 2)

	_, ok = c.Get(ctx, port.CacheKey{Collection: "docs", Query: "rent", K: 5, Filters: domain.Filter{"source": "b.pdf"}})
	assert.False(t, ok)
}

func TestQueryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(10, time.Minute)
	key := port.CacheKey{Collection: "docs", Query: "rent", K: 5}
	stored := sampleResults()
	c.Set(ctx, key, stored)
	stored[0].Content = "mutated"

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "first", got[0].Content)
}

func TestQueryCache_EvictsBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewQueryCache(2, time.Minute)
	for _, q := range []string{"a", "b", "c"} {
		c.Set(ctx, port.CacheKey{Collection: "docs", Query: q, K: 1}, sampleResults())
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, port.CacheKey{Collection: "docs", Query: "a", K: 1})
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	base := port.CacheKey{Collection: "docs", Query: "Rent  Deposit", K: 5, Filters: domain.Filter{"a": 1, "b": "x"}}

	same := base
	same.Query = " rent deposit "
	same.Filters = domain.Filter{"b": "x", "a": 1}
	assert.Equal(t, Key(base), Key(same))

	otherK := base
	otherK.K = 6
	assert.NotEqual(t, Key(base), Key(otherK))

	otherCollection := base
	otherCollection.Collection = "law"
	assert.NotEqual(t, Key(base), Key(otherCollection))

	otherFusion := base
	otherFusion.Fusion = domain.FusionBlend
	assert.NotEqual(t, Key(base), Key(otherFusion))

	assert.Equal(t,
		Key(port.CacheKey{Collection: "docs", Query: "q", K: 1, Filters: domain.Filter{}}),
		Key(port.CacheKey{Collection: "docs", Query: "q", K: 1}))
}

type fakeRedis struct {
	data map[string][]byte
	ttl  time.Duration
	fail error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.fail != nil {
		return redis.NewStringResult("", f.fail)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.fail != nil {
		return redis.NewStatusResult("", f.fail)
	}
	f.data[key] = value.([]byte)
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisQueryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string][]byte{}}
	c := newRedisQueryCache(fake, 2*time.Minute)
	key := port.CacheKey{Collection: "docs", Query: "rent", K: 5}

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, sampleResults())
	assert.Equal(t, 2*time.Minute, fake.ttl)

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, sampleResults(), got)

	_, ok = c.Get(ctx, port.CacheKey{Collection: "docs", Query: "rent", K: 5, Filters: domain.Filter{"x": "y"}})
	assert.False(t, ok)
}

func TestRedisQueryCache_ErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string][]byte{}, fail: errors.New("connection refused")}
	c := newRedisQueryCache(fake, time.Minute)
	key := port.CacheKey{Collection: "docs", Query: "rent", K: 5}

	c.Set(ctx, key, sampleResults())
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}
