package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache stores serialized usage snapshots keyed by viewer and range.
// Misses and backend failures look the same to callers.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, key string)
}

// RedisSnapshotCache shares snapshots across console replicas.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil || key == "" {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.prefixed(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *RedisSnapshotCache) Set(ctx context.Context, key string, value []byte) {
	if c == nil || c.client == nil || key == "" || len(value) == 0 {
		return
	}
	c.client.Set(ctx, c.prefixed(key), value, c.ttl)
}

func (c *RedisSnapshotCache) Delete(ctx context.Context, key string) {
	if c == nil || c.client == nil || key == "" {
		return
	}
	c.client.Del(ctx, c.prefixed(key))
}

func (c *RedisSnapshotCache) prefixed(key string) string {
	return "snapshot:" + key
}

// MemorySnapshotCache keeps snapshots in process, bounded by total bytes.
type MemorySnapshotCache struct {
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

func NewMemorySnapshotCache(maxBytes int64, ttl time.Duration) (*MemorySnapshotCache, error) {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemorySnapshotCache{cache: c, ttl: ttl}, nil
}

func (c *MemorySnapshotCache) Get(_ context.Context, key string) ([]byte, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *MemorySnapshotCache) Set(_ context.Context, key string, value []byte) {
	if c == nil || key == "" || len(value) == 0 {
		return
	}
	c.cache.SetWithTTL(key, value, int64(len(value)), c.ttl)
	c.cache.Wait()
}

func (c *MemorySnapshotCache) Delete(_ context.Context, key string) {
	if c == nil || key == "" {
		return
	}
	c.cache.Del(key)
}

// Close releases the cache's background goroutines.
func (c *MemorySnapshotCache) Close() {
	if c != nil {
		c.cache.Close()
	}
}

// NoopSnapshotCache disables snapshot caching.
type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NoopSnapshotCache) Set(context.Context, string, []byte)       {}
func (NoopSnapshotCache) Delete(context.Context, string)            {}
