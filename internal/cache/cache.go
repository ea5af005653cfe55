package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the Redis-backed counter interface used by the rate limiter.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SlidingWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client exposes the underlying connection pool so other Redis-backed
// components share it.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// SlidingWindow records one hit at now under key and returns the number of hits
// inside (now-window, now]. Trim, add, count and expiry run in a single
// MULTI/EXEC so concurrent callers for the same key never under-count.
func (c *RedisCache) SlidingWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	// Members must be unique or hits in the same millisecond collapse into one.
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	pipe := c.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

var _ Cache = (*RedisCache)(nil)
