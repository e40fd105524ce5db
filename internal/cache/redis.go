package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"SIP-Compose/pkg/proof"
)

// RedisCacheConfig describes the Redis connection for the shared proof cache.
type RedisCacheConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisCache stores proofs as JSON values with a server-side TTL so multiple
// composer instances can share one cache.
type RedisCache struct {
	client *redis.Client
	prefix string
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache connects to Redis and verifies the connection with a ping.
func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sipcompose:proofs:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*proof.SingleProof, bool, error) {
	payload, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var p proof.SingleProof
	if err := json.Unmarshal(payload, &p); err != nil {
		// A corrupt entry is treated as a miss and evicted.
		_ = c.client.Del(ctx, c.prefix+key).Err()
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return &p, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, p *proof.SingleProof, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Clear implements Cache. Keys are walked with SCAN to avoid blocking the
// server on large keyspaces.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Stats implements Cache. Hit counters are process-local; the entry count is
// taken from the shared keyspace.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	entries := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		entries++
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("redis scan: %w", err)
	}
	return Stats{Entries: entries, Hits: c.hits.Load(), Misses: c.misses.Load()}, nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
