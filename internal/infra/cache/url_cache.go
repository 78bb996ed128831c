// Package cache keeps the URLs of uploaded artifacts in Redis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = time.Second

// URLCache maps a document digest to the URL its artifact was uploaded to.
type URLCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewURLCache stores entries for ttl; a non-positive ttl means one minute.
func NewURLCache(rdb *redis.Client, ttl time.Duration) *URLCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &URLCache{rdb: rdb, ttl: ttl}
}

// NewClient connects to addr on db and checks the connection with PING.
func NewClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Get returns the cached URL for key and whether there was one.
func (c *URLCache) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	url, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// Set remembers url under key.
func (c *URLCache) Set(ctx context.Context, key, url string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.rdb.Set(ctx, key, url, c.ttl).Err()
}
