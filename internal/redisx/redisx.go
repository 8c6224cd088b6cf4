// Package redisx provides the optional shared Redis client used by the geo
// cache tier and the rate limiter.
package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"visitor-beacon-api/internal/config"
)

// Client is an alias for a Redis client
type Client = redis.Client

const pingTimeout = 2 * time.Second

// Open returns a nil client without error when REDIS_ADDR is unset. A
// configured but unreachable server is an error.
func Open(cfg *config.Config) (*Client, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,

		// callers bound Redis round trips with their own deadlines
		ContextTimeoutEnabled: true,
	})
	if err := Ping(context.Background(), rdb); err != nil {
		_ = rdb.Close()
		return nil, func() {}, err
	}
	closer := func() { _ = rdb.Close() }
	return rdb, closer, nil
}

// Ping checks reachability within a short bound. Used at startup and by
// the health check.
func Ping(ctx context.Context, rdb *Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
