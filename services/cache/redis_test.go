//go:build integration

package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
)

func TestRedisCache_Incr(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS is not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, core.RedisConfig{Address: addr})
	require.NoError(t, err)
	defer client.Close()

	conf := core.NewTestConfig()
	conf.AppName = "AventureirosTest"
	c := NewRedisCache(client, conf)
	key := "login:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	defer func() { _ = c.Delete(ctx, key) }()

	n, err := c.Incr(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// the window is set by the first attempt only
	n, err = c.Incr(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl := client.TTL(ctx, "aventureirostest:"+key).Val()
	assert.True(t, ttl > 0 && ttl <= time.Minute, ttl)
}
