package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	c := NewMemoryCache()

	t.Run("get/set", func(t *testing.T) {
		_, err := c.Get(ctx, "k")
		assert.Equal(t, core.ErrCacheMiss, err)

		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		val, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(val))
	})

	t.Run("expiration", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Second))
		now = now.Add(2 * time.Second)
		_, err := c.Get(ctx, "short")
		assert.Equal(t, core.ErrCacheMiss, err)
	})

	t.Run("setnx", func(t *testing.T) {
		ok, err := c.SetNX(ctx, "once", []byte("1"), time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = c.SetNX(ctx, "once", []byte("2"), time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("incr", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := c.Incr(ctx, "counter", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
		now = now.Add(time.Hour)
		n, err := c.Incr(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "gone", []byte("v"), 0))
		require.NoError(t, c.Delete(ctx, "gone", "missing"))
		_, err := c.Get(ctx, "gone")
		assert.Equal(t, core.ErrCacheMiss, err)
	})
}
