// Package cache is the freshness-check fast path the orchestrator
// consults before re-fetching a product: a cheap, short-TTL key/value
// store so Phase 2 (freshness filter) never has to touch Postgres to
// learn that a product was captured within the configured threshold.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the minimal freshness-check surface: byte blobs in, byte
// blobs out, with a TTL on write.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// New returns an in-process map-backed cache, suitable for a
// single-instance run.
func New() Cache { return &memory{m: make(map[string]entry)} }

func (c *memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct{ client *redis.Client }

// NewAuto returns a redis-backed cache when addr is non-empty
// (config.DatastoreConfig.RedisAddr, set via OPPSCAN_REDIS_ADDR), and
// falls back to the in-memory cache otherwise — a bare-metal run with
// no Redis deployed still gets a working freshness check.
func NewAuto(addr string) Cache {
	if addr == "" {
		return New()
	}
	return &redisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	v, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_ = r.client.Set(ctx, key, val, ttl).Err()
}
