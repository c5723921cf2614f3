package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "entry should be live before TTL")

	now = now.Add(time.Minute + time.Second)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after TTL")
}

func TestMemoryStoreIncrementAndExpire(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	n, err := store.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, store.Expire(ctx, "counter", time.Minute))
	now = now.Add(2 * time.Minute)

	// Counter restarts once the window key expires.
	n, err = store.Increment(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStoreDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Set(ctx, "gateway:service:orders", "a", 0))
	require.NoError(t, store.Set(ctx, "gateway:service:billing", "b", 0))
	require.NoError(t, store.Set(ctx, "ratelimit:1.2.3.4", "c", 0))

	require.NoError(t, store.DeleteByPattern(ctx, "gateway:service:*"))

	_, ok, _ := store.Get(ctx, "gateway:service:orders")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "gateway:service:billing")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "ratelimit:1.2.3.4")
	assert.True(t, ok, "unrelated keys must survive pattern deletes")
}
