package kv

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisConfig selects the Redis instance and the key namespace.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RedisStorage stores each key as a plain Redis string. SET is atomic, so a
// failed write never leaves a partial value behind.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(cfg RedisConfig) *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStorage{client: client, prefix: cfg.Prefix}
}

// Ping checks the connection; used at startup so a bad address fails fast.
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *RedisStorage) Set(ctx context.Context, key string, val []byte) error {
	return r.client.Set(ctx, r.prefix+key, val, 0).Err()
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
