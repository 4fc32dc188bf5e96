// Package redis backs the last-good view cache and the refresh signal bus
// with go-redis/v9. One connection pool is shared by both: the SnapshotCache
// holds the latest portfolio and rewards views between refresh cycles, and
// the SignalBus relays cycle-completed events to the WebSocket hub.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the shared Redis pool.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the go-redis connection pool shared by the snapshot cache and
// the signal bus. Construct it once at wiring time and pass it to
// NewSnapshotCache and NewSignalBus.
type Client struct {
	rdb *redis.Client
}

// New opens the pool and pings it once so a misconfigured address fails at
// startup instead of on the first refresh cycle.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Close releases the connection pool. Cached views are left in place so a
// restart serves the last-good result immediately.
func (c *Client) Close() error {
	return c.rdb.Close()
}
