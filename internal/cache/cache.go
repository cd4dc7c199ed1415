// Package cache keeps the latest twin view in Redis so dashboards in other
// processes can read it without reaching the twin.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/internal/twin"
)

// ErrMiss is returned by Get when no view is cached.
var ErrMiss = errors.New("cache: miss")

// kv is the subset of a Redis client the cache uses.
type kv interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

type redisKV struct{ c *redis.Client }

func (r redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r redisKV) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }
func (r redisKV) Close() error                   { return r.c.Close() }

// ViewCache stores twin.View documents under one key with a TTL.
type ViewCache struct {
	kv  kv
	key string
	ttl time.Duration
}

// New connects to the Redis server described by cfg.
func New(cfg config.CacheConfig) *ViewCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password(),
		DB:       cfg.DB,
	})
	return &ViewCache{kv: redisKV{c: rdb}, key: cfg.Key, ttl: cfg.TTL}
}

// Ping checks the connection.
func (c *ViewCache) Ping(ctx context.Context) error {
	if err := c.kv.Ping(ctx); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// Put replaces the cached view.
func (c *ViewCache) Put(ctx context.Context, v twin.View) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode view: %w", err)
	}
	if err := c.kv.Set(ctx, c.key, body, c.ttl); err != nil {
		return fmt.Errorf("cache: set %s: %w", c.key, err)
	}
	return nil
}

// Get returns the cached view, or ErrMiss.
func (c *ViewCache) Get(ctx context.Context) (twin.View, error) {
	body, err := c.kv.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return twin.View{}, ErrMiss
		}
		return twin.View{}, fmt.Errorf("cache: get %s: %w", c.key, err)
	}
	var v twin.View
	if err := json.Unmarshal(body, &v); err != nil {
		return twin.View{}, fmt.Errorf("cache: decode view: %w", err)
	}
	return v, nil
}

// Close releases the connection.
func (c *ViewCache) Close() error { return c.kv.Close() }
