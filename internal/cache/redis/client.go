// Package redis backs the desk's cross-process coordination: the signal bus
// carrying change notifications, the per-position mutation locks, and the
// API rate limiter.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps a go-redis client; the bus, lock, and limiter types in this
// package are all built on it.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies connectivity with a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	var tlsCfg *tls.Config
	if cfg.TLSEnabled {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		TLSConfig:  tlsCfg,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw driver client to the sibling types.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
