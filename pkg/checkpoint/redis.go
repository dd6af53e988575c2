package checkpoint

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs checkpoint resume state with a Redis instance, so a
// fleet of batch placement runs can share one resume store instead of each
// needing its own local disk.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache dials addr and returns a Cache over it. Every key is
// namespaced under "checkpoint:" so a shared Redis instance can host other
// unrelated key spaces safely.
func NewRedisCache(addr string) (Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisCache{client: client, prefix: "checkpoint:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
