package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache implementation backed by redis, for deployments
// where the API runs more than one replica and the in-process cache would
// go stale across instances. Values are stored as JSON under
// "<prefix>:user:<key>" with the TTL applied by redis itself; capacity is
// delegated to the server's eviction policy.
type RedisCache[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache[V any](client *redis.Client, prefix string, ttl time.Duration) *RedisCache[V] {
	return &RedisCache[V]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewRedisClient dials redis and verifies the connection.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (c *RedisCache[V]) key(key string) string {
	return fmt.Sprintf("%s:user:%s", c.prefix, key)
}

func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		// redis.Nil and transport errors are both misses; the store
		// remains authoritative
		return zero, false
	}

	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false
	}
	return value, true
}

func (c *RedisCache[V]) Set(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

func (c *RedisCache[V]) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
