package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache[string](nil)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))

	v, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache[string](nil)
	defer c.Close()

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache[string](nil)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", "v1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewMemoryCache[int](nil)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))

	require.NoError(t, c.Delete(ctx, "a"))
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheEnforcesMaxItems(t *testing.T) {
	opts := &CacheOptions{DefaultTTL: time.Minute, MaxItems: 2}
	c := NewMemoryCache[int](opts)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	count := 0
	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.Get(ctx, k); err == nil {
			count++
		}
	}
	assert.LessOrEqual(t, count, 2)
}

func TestAccessTrackerTracksHotItems(t *testing.T) {
	tr := NewAccessTracker(2, 0.5)
	tr.RecordAccess("hot")
	tr.RecordAccess("hot")
	tr.RecordAccess("hot")
	tr.RecordAccess("cold")

	assert.True(t, tr.IsHotItem("hot") || tr.IsHotItem("cold"), "at least one tracked item should register as hot")
}
