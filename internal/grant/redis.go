package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps every device's grants in one Redis database, namespaced
// as grant:<deviceID>:<key>. Entries never expire.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "grant:",
	}
}

func (s *RedisStore) ForDevice(deviceID string) KV {
	return &deviceKV{store: s, namespace: s.prefix + deviceID + ":"}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type deviceKV struct {
	store     *RedisStore
	namespace string
}

func (d *deviceKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := d.store.client.Get(ctx, d.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read grant: %w", err)
	}
	return value, true, nil
}

func (d *deviceKV) Set(ctx context.Context, key, value string) error {
	if err := d.store.client.Set(ctx, d.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("save grant: %w", err)
	}
	return nil
}

func (d *deviceKV) Delete(ctx context.Context, key string) error {
	if err := d.store.client.Del(ctx, d.namespace+key).Err(); err != nil {
		return fmt.Errorf("clear grant: %w", err)
	}
	return nil
}
