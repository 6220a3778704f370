// Package cache memoizes planning results in a TTL-bounded key-value store.
// Entries are written at most once per cache-missed turn and never mutated;
// the backend's atomic per-key operations make locking unnecessary.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowweave/flowweave/config"
)

// Cache is a TTL-bounded key-value store for serialized planning results.
type Cache interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key for the given lifetime. Values are
	// immutable once stored; a different turn produces a different key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Conn establishes a verified redis connection.
func Conn(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	log.Printf("[CACHE] connected to %s:%s db=%d", cfg.Host, cfg.Port, cfg.DB)

	return client, nil
}

// RedisCache implements Cache on a redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an established client. The client is constructed once
// at process start and handed to each planning call by reference.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get reads a key, distinguishing absence from backend errors.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return val, true, nil
}

// Set writes a key with the provided TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Key derives the cache key for a planning turn from the intent and the
// conversation history snapshot. Identical turns hash to identical keys.
func Key(intent string, history []string) string {
	h := sha256.New()
	h.Write([]byte(intent))
	for _, msg := range history {
		h.Write([]byte{0})
		h.Write([]byte(msg))
	}
	return "plan:" + hex.EncodeToString(h.Sum(nil))
}
