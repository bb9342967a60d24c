package currency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RateCache stores looked-up rates keyed by pair.
type RateCache interface {
	Get(ctx context.Context, from, to string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, from, to string, rate decimal.Decimal) error
}

func pairKey(from, to string) string {
	return from + ":" + to
}

type memoryEntry struct {
	rate      decimal.Decimal
	expiresAt time.Time
}

// MemoryCache is an in-process RateCache with a fixed time to live.
type MemoryCache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	rates map[string]memoryEntry
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, rates: make(map[string]memoryEntry)}
}

// Get returns a cached rate that has not expired.
func (c *MemoryCache) Get(_ context.Context, from, to string) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	entry, ok := c.rates[pairKey(from, to)]
	c.mu.RUnlock()
	if !ok {
		return decimal.Zero, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.rates, pairKey(from, to))
		c.mu.Unlock()
		return decimal.Zero, false, nil
	}
	return entry.rate, true, nil
}

// Set stores a rate.
func (c *MemoryCache) Set(_ context.Context, from, to string, rate decimal.Decimal) error {
	entry := memoryEntry{rate: rate}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.rates[pairKey(from, to)] = entry
	c.mu.Unlock()
	return nil
}

// RedisCache shares rates between processes through Redis string keys.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "pennywise:fx:"}
}

// Get returns a cached rate. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, from, to string) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+pairKey(from, to)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis get rate: %w", err)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis rate %q for %s: %w", raw, pairKey(from, to), err)
	}
	return rate, true, nil
}

// Set stores a rate with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, from, to string, rate decimal.Decimal) error {
	if err := c.client.Set(ctx, c.prefix+pairKey(from, to), rate.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set rate: %w", err)
	}
	return nil
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
