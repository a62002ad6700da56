package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = time.Minute

// RedisCache stores rendered read models in Redis.
type RedisCache struct {
	rc *redis.Client
}

// NewRedisCache wraps rc.
func NewRedisCache(rc *redis.Client) *RedisCache {
	return &RedisCache{rc: rc}
}

// GetBytes returns cached bytes for a key.
func (c *RedisCache) GetBytes(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			Sugar.Debugf("cache get miss key=%s err=%v", key, err)
		}
		return nil, false
	}
	return b, true
}

// SetJSON marshals v and stores it for ttl.
func (c *RedisCache) SetJSON(key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// InvalidatePrefix deletes keys that match the given prefix using SCAN.
func (c *RedisCache) InvalidatePrefix(prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // bounded rounds
		keys, cur, err := c.rc.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			break
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := c.rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		if cursor == 0 {
			break
		}
	}
}

// MemoryCache is the in-process fallback used when Redis is not configured.
// mu guards every access to items.
type MemoryCache struct {
	mu    sync.Mutex
	items *simplelru.LRU
	now   func() time.Time
}

type memoryEntry struct {
	b       []byte
	expires time.Time
}

// NewMemoryCache keeps up to size entries. size must be positive.
func NewMemoryCache(size int) (*MemoryCache, error) {
	items, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &MemoryCache{items: items, now: time.Now}, nil
}

func (c *MemoryCache) GetBytes(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(memoryEntry)
	if !c.now().Before(e.expires) {
		c.items.Remove(key)
		return nil, false
	}
	return e.b, true
}

func (c *MemoryCache) SetJSON(key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, memoryEntry{b: b, expires: c.now().Add(ttl)})
}

func (c *MemoryCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.items.Keys() {
		if s, ok := k.(string); ok && strings.HasPrefix(s, prefix) {
			c.items.Remove(k)
		}
	}
}
