// Package cache holds populated exam views between writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExamCache is a read-through cache for JSON-encodable values
type ExamCache interface {
	// Get decodes the cached value into dst; found is false on a miss.
	Get(ctx context.Context, key string, dst interface{}) (found bool, err error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// ExamKeys returns every key cached for one exam
func ExamKeys(examID string) []string {
	return []string{ExamKey(examID, true), ExamKey(examID, false)}
}

// ExamKey is the key of one populated view of an exam
func ExamKey(examID string, withAnswers bool) string {
	if withAnswers {
		return fmt.Sprintf("exam:%s:full", examID)
	}
	return fmt.Sprintf("exam:%s:student", examID)
}

// RedisCache stores values as JSON strings with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get implements ExamCache
func (c *RedisCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements ExamCache
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Delete implements ExamCache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close releases the redis connection pool
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache never stores anything; used when no redis is configured
type NoopCache struct{}

// Get implements ExamCache
func (NoopCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }

// Set implements ExamCache
func (NoopCache) Set(context.Context, string, interface{}) error { return nil }

// Delete implements ExamCache
func (NoopCache) Delete(context.Context, ...string) error { return nil }

// MemoryCache keeps JSON-encoded values in a map
type MemoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

// Get implements ExamCache
func (c *MemoryCache) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	raw, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

// Set implements ExamCache
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = raw
	c.mu.Unlock()
	return nil
}

// Delete implements ExamCache
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
