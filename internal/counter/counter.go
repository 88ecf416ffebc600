// Package counter adapts the external counter store: monotonic integers
// keyed by string, INCRBY/GET semantics, missing key reads as zero. The
// tournament engines use it for hot participation and team-score
// aggregates; the score collections stay the source of truth.
package counter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is the narrow surface the engines need. The redis client
// satisfies it in production; tests use an in-memory map.
type Store interface {
	IncrBy(ctx context.Context, key string, delta int64) error
	GetInt(ctx context.Context, key string) (int64, error)
}

// Client wraps redis.Client.
type Client struct {
	rdb *redis.Client
}

// New parses the URI, connects and pings.
func New(ctx context.Context, uri string) (*Client, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) IncrBy(ctx context.Context, key string, delta int64) error {
	return c.rdb.IncrBy(ctx, key, delta).Err()
}

// GetInt reads a counter; an absent key is zero, not an error.
func (c *Client) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}
