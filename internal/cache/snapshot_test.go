package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisSnapshotCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisSnapshotCache(client, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "own:alice:2025-01-01:2025-01-31")
	require.False(t, ok)

	c.Set(ctx, "own:alice:2025-01-01:2025-01-31", []byte(`{"records":[]}`))
	got, ok := c.Get(ctx, "own:alice:2025-01-01:2025-01-31")
	require.True(t, ok)
	require.JSONEq(t, `{"records":[]}`, string(got))
	require.True(t, mr.Exists("snapshot:own:alice:2025-01-01:2025-01-31"))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "own:alice:2025-01-01:2025-01-31")
	require.False(t, ok)

	c.Set(ctx, "k", []byte("v"))
	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemorySnapshotCache(t *testing.T) {
	c, err := NewMemorySnapshotCache(1<<20, time.Minute)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	ctx := context.Background()

	c.Set(ctx, "all:2025-01", []byte("payload"))
	got, ok := c.Get(ctx, "all:2025-01")
	require.True(t, ok)
	require.Equal(t, "payload", string(got))

	c.Delete(ctx, "all:2025-01")
	_, ok = c.Get(ctx, "all:2025-01")
	require.False(t, ok)

	c.Set(ctx, "", []byte("ignored"))
	_, ok = c.Get(ctx, "")
	require.False(t, ok)
}

func TestNoopSnapshotCache(t *testing.T) {
	var c SnapshotCache = NoopSnapshotCache{}
	c.Set(context.Background(), "k", []byte("v"))
	_, ok := c.Get(context.Background(), "k")
	require.False(t, ok)
}
