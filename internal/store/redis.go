package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores values as plain redis strings under a key prefix.
type RedisKV struct {
	client *redis.Client
	prefix string
}

func NewRedisKV(ctx context.Context, opts *redis.Options, prefix string) (RedisKV, error) {
	client := redis.NewClient(opts)
	err := client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return RedisKV{}, err
	}
	return RedisKV{client: client, prefix: prefix}, nil
}

func (r RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r RedisKV) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r RedisKV) Close() error {
	return r.client.Close()
}
