package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, addr, password string, db int, prefix string) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: rdb,
		prefix: prefix,
	}, nil
}

func (r *RedisClient) generateKey(keys ...string) string {
	return strings.Join(append([]string{r.prefix}, keys...), ":")
}

func (r *RedisClient) HGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	data, err := r.client.HGet(ctx, key, field).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisClient) HSet(ctx context.Context, key, field string, value []byte) error {
	return r.client.HSet(ctx, key, field, value).Err()
}

func (r *RedisClient) HDel(ctx context.Context, key, field string) error {
	return r.client.HDel(ctx, key, field).Err()
}

func (r *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// RedisKVStore keeps each collection in one hash, "<prefix>:<collection>".
type RedisKVStore struct {
	client *RedisClient
}

func NewRedisKVStore(client *RedisClient) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (s *RedisKVStore) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	data, ok, err := s.client.HGet(ctx, s.client.generateKey(collection), key)
	if err != nil || !ok {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (s *RedisKVStore) Put(ctx context.Context, collection, key string, value json.RawMessage) error {
	return s.client.HSet(ctx, s.client.generateKey(collection), key, value)
}

func (s *RedisKVStore) Delete(ctx context.Context, collection, key string) error {
	return s.client.HDel(ctx, s.client.generateKey(collection), key)
}

func (s *RedisKVStore) GetAll(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	raw, err := s.client.HGetAll(ctx, s.client.generateKey(collection))
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

func (s *RedisKVStore) Close() error {
	return s.client.Close()
}
