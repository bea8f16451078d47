// Package cache holds the Redis-backed ranking-view cache. The cache is a
// best-effort latency layer: every operation degrades to a miss on Redis
// failure so reads always fall through to the store.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/platform/config"
)

var RDB *redis.Client

func ConnectRedis() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx := context.Background()
	if _, err := RDB.Ping(ctx).Result(); err != nil {
		// The cache is not a hard dependency; start degraded.
		slog.Warn("redis unavailable, ranking cache disabled", "addr", config.AppConfig.RedisAddr, "error", err)
	}
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
	}
}

// RedisCache adapts a redis client to the query-service cache contract:
// JSON values with a fixed TTL and prefix-wide invalidation.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Get unmarshals the cached value for key into dest. A Redis error is
// logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache set marshal failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
	}
}

// DeleteByPrefix removes every key under the given prefix. Invalidation is
// deliberately coarse: one prefix per leaderboard covers all query shapes.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache scan failed", "prefix", prefix, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidation failed", "prefix", prefix, "error", err)
	}
}
