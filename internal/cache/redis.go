package cache

import (
	"context"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Redis implementa Client sobre go-redis.
type Redis struct {
	c      *rdb.Client
	prefix string
}

// NewRedis crea un cache Redis desde la configuración.
func NewRedis(cfg Config) *Redis {
	return &Redis{
		c: rdb.NewClient(&rdb.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.Prefix,
	}
}

// NewRedisFromClient envuelve un cliente existente (comparte pool con otros usos).
func NewRedisFromClient(client *rdb.Client, prefix string) *Redis {
	return &Redis{c: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.c.Get(ctx, r.key(key)).Result()
	if errors.Is(err, rdb.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.c.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.key(key)).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, r.key(key)).Result()
	return n > 0, err
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.c.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.c.Close() }
