package redisad

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/observability"
)

// Cache shares the review snapshot between API replicas.
type Cache struct {
	c      *redis.Client
	prefix string
}

func New(addr, pass string, db int) *Cache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}))
}

func NewWithClient(c *redis.Client) *Cache {
	return &Cache{c: c, prefix: "metawatch:"}
}

func (r *Cache) Ping(ctx context.Context) error {
	return errors.Wrap(r.c.Ping(ctx).Err(), "redis ping")
}

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		observability.ObserveCache("redis", "error")
		return false, errors.Wrapf(err, "redis get %s", key)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		observability.ObserveCache("redis", "error")
		return false, errors.Wrapf(err, "redis decode %s", key)
	}
	observability.ObserveCache("redis", "hit")
	return true, nil
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "redis encode %s", key)
	}
	observability.ObserveCache("redis", "set")
	return errors.Wrapf(r.c.Set(ctx, r.prefix+key, b, time.Duration(ttlSec)*time.Second).Err(), "redis set %s", key)
}

func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	return errors.Wrapf(r.c.Del(ctx, r.prefix+key).Err(), "redis del %s", key)
}

func (r *Cache) Close() error { return r.c.Close() }
