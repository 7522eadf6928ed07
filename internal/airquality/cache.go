package airquality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no fresh reading is cached for a key.
var ErrCacheMiss = errors.New("air quality cache miss")

// Cache stores readings keyed by rounded coordinate.
type Cache interface {
	Get(ctx context.Context, key string) (*Reading, error)
	Set(ctx context.Context, key string, reading *Reading, ttl time.Duration) error
}

// CacheKey rounds coordinates to two decimals (roughly 1 km) so nearby
// lookups share an entry.
func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("aq:current:%.2f:%.2f", lat, lon)
}

type memoryEntry struct {
	reading   *Reading
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached reading if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (*Reading, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	return entry.reading.Clone(), nil
}

// Set stores a copy of the reading.
func (c *MemoryCache) Set(_ context.Context, key string, reading *Reading, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		reading:   reading.Clone(),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// RedisCache shares readings across API instances.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get loads a reading from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (*Reading, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var reading Reading
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil, fmt.Errorf("decoding cached reading: %w", err)
	}
	return &reading, nil
}

// Set stores a reading in Redis with the given expiry.
func (c *RedisCache) Set(ctx context.Context, key string, reading *Reading, ttl time.Duration) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
