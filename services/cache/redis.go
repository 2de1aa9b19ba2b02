// Package cache provides the redis cache used in production and an in-memory one for development and tests.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/pinhaljunior/aventureiros/core"
)

// incrScript sets the expiry only when the counter is created.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

type redisCache struct {
	client *redis.Client
	prefix string
}

var _ core.Cache = (*redisCache)(nil)

// Connect creates a redis client from a redis:// URL or a host:port address.
func Connect(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	var opt *redis.Options
	if strings.HasPrefix(conf.Address, "redis://") || strings.HasPrefix(conf.Address, "rediss://") {
		parsed, err := redis.ParseURL(conf.Address)
		if err != nil {
			return nil, errors.Wrap(err, "parsing redis url")
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: conf.Address, Password: conf.Password, DB: conf.DB}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// NewRedisCache prefixes every key with the app name so several apps can share a redis database.
func NewRedisCache(client *redis.Client, conf *core.Config) core.Cache {
	return &redisCache{client: client, prefix: strings.ToLower(conf.AppName) + ":"}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, core.ErrCacheMiss
	}
	return val, err
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, val, ttl).Err()
}

func (c *redisCache) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.prefix+key, val, ttl).Result()
}

func (c *redisCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrScript.Run(ctx, c.client, []string{c.prefix + key}, ttl.Milliseconds()).Int64()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefix + k
	}
	return c.client.Del(ctx, prefixed...).Err()
}
