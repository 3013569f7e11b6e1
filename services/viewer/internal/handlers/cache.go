package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Cache is the minimal read/write interface for the browse response cache.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, v any)
}

type cacheItem struct {
	val       any
	expiresAt time.Time
}

// TTLCache is an in-memory Cache with per-entry expiry and optional NATS
// key-level invalidation (the ingestion pipeline publishes a movie code, or
// "ALL", whenever upstream data changes).
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
}

func NewTTLCache(ttlSec int, nc *nats.Conn, subj string) *TTLCache {
	if ttlSec <= 0 {
		ttlSec = 60
	}
	c := &TTLCache{
		items: make(map[string]cacheItem),
		ttl:   time.Duration(ttlSec) * time.Second,
	}
	if nc != nil && subj != "" {
		_, _ = nc.Subscribe(subj, func(m *nats.Msg) {
			key := string(m.Data)
			c.mu.Lock()
			defer c.mu.Unlock()
			if key == "" || strings.EqualFold(key, "ALL") {
				c.items = make(map[string]cacheItem)
				return
			}
			delete(c.items, key)
		})
	}
	return c
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && time.Now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return it.val, true
}

func (c *TTLCache) Set(key string, v any) {
	c.mu.Lock()
	c.items[key] = cacheItem{val: v, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// RedisCache is a Cache backed by Redis, for running more than one viewer
// instance behind a load balancer. Values are stored as JSON; Get returns a
// json.RawMessage, which the write path passes through unchanged.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttlSec int) *RedisCache {
	if ttlSec <= 0 {
		ttlSec = 60
	}
	return &RedisCache{rdb: rdb, ttl: time.Duration(ttlSec) * time.Second}
}

func (c *RedisCache) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := c.rdb.Get(ctx, "viewer:cache:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(raw), true
}

func (c *RedisCache) Set(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.rdb.Set(ctx, "viewer:cache:"+key, data, c.ttl).Err()
}
