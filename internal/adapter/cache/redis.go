package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

const keyPrefix = "rag:query:"

// kv is the subset of the go-redis client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisQueryCache shares cached results between processes. Errors are
// logged and reported as misses.
type RedisQueryCache struct {
	client kv
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisQueryCache(client *redis.Client, ttl time.Duration) *RedisQueryCache {
	return newRedisQueryCache(client, ttl)
}

func newRedisQueryCache(client kv, ttl time.Duration) *RedisQueryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisQueryCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "redis_query_cache"),
	}
}

// DialRedis creates a client and verifies the connection with a PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (c *RedisQueryCache) Get(ctx context.Context, key port.CacheKey) ([]domain.QueryResult, bool) {
	k := keyPrefix + Key(key)
	data, err := c.client.Get(ctx, k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		return nil, false
	}
	var results []domain.QueryResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		return nil, false
	}
	return results, true
}

func (c *RedisQueryCache) Set(ctx context.Context, key port.CacheKey, results []domain.QueryResult) {
	k := keyPrefix + Key(key)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.client.Set(ctx, k, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}
