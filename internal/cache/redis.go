// Package cache provides a tiny Redis client wrapper for caching predicted
// class indices by image digest.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key this package writes.
const KeyPrefix = "leafscan"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Cache wraps a Redis client for prediction storage
type Cache struct {
	client *redis.Client
}

// New creates a new Cache instance connected to the specified Redis address
// If addr is empty, defaults to localhost:6379
func New(ctx context.Context, opts Options) (*Cache, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Cache{client: client}, nil
}

// Key builds the cache key for an image digest under a model version.
func Key(modelVersion, digest string) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, modelVersion, digest)
}

// SetClass stores a predicted class index with the specified TTL.
// A zero TTL keeps the entry until evicted.
func (c *Cache) SetClass(ctx context.Context, key string, classIndex int, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache client is nil")
	}

	if err := c.client.Set(ctx, key, classIndex, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// GetClass retrieves a cached class index. found is false when the key does
// not exist.
func (c *Cache) GetClass(ctx context.Context, key string) (classIndex int, found bool, err error) {
	if c == nil || c.client == nil {
		return 0, false, fmt.Errorf("cache client is nil")
	}

	data, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	classIndex, err = strconv.Atoi(data)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return classIndex, true, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}
