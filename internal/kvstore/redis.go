package kvstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each key as a hash {data, version}.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Client exposes the underlying client for components sharing the connection.
func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

func (r *RedisBackend) Load(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := r.client.HMGet(ctx, key, "data", "version").Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis hmget %s: %w", key, err)
	}
	data, ok := vals[0].(string)
	if !ok {
		return Entry{}, false, nil
	}
	var version int64
	if v, ok := vals[1].(string); ok {
		version, _ = strconv.ParseInt(v, 10, 64)
	}
	return Entry{Data: []byte(data), Version: version}, true, nil
}

func (r *RedisBackend) Save(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	res, err := saveScript.Run(ctx, r.client, []string{key}, data, expected).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis save %s: %w", key, err)
	}
	if res < 0 {
		return 0, ErrConcurrentModification
	}
	return res, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

var saveScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
local expected = tonumber(ARGV[2])
if expected >= 0 and cur ~= expected then
  return -1
end
local nextv = cur + 1
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', nextv)
return nextv
`)
