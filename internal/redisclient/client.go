package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Quota is the outcome of a rate limit check
type Quota struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow counts one hit against a fixed window counter and reports whether
// it stays within limit. The window starts with the first hit.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (Quota, error) {
	key = fmt.Sprintf("ratelimit:%s", key)

	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Quota{}, fmt.Errorf("rate limit increment failed: %w", err)
	}

	ttl, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return Quota{}, fmt.Errorf("rate limit ttl failed: %w", err)
	}
	// first hit, or a counter left behind without expiry
	if count == 1 || ttl < 0 {
		if err := c.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return Quota{}, fmt.Errorf("rate limit expire failed: %w", err)
		}
		ttl = window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Quota{
		Allowed:    count <= int64(limit),
		Remaining:  remaining,
		RetryAfter: ttl,
	}, nil
}
