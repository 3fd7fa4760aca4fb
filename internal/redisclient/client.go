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

// NewClient creates a new Redis client and verifies connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
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

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireOrderLock acquires a distributed lock for a single order.
// Returns false if another process holds the lock.
func (c *Client) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:order:%s", orderID), "1", ttl).Result()
}

// ReleaseOrderLock releases a distributed order lock
func (c *Client) ReleaseOrderLock(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:order:%s", orderID)).Err()
}

// MarkEventSeen caches a processed webhook event id with TTL. The database
// processed_events table stays authoritative; this is a fast-path cache.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("webhook:event:%s", eventID), "1", ttl).Err()
}

// IsEventSeen checks the webhook dedup cache
func (c *Client) IsEventSeen(ctx context.Context, eventID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("webhook:event:%s", eventID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// CachePaymentLink stores a generated payment link URL for an order with TTL
func (c *Client) CachePaymentLink(ctx context.Context, orderID, url string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("paylink:%s", orderID), url, ttl).Err()
}

// GetCachedPaymentLink returns the cached payment link for an order, if any
func (c *Client) GetCachedPaymentLink(ctx context.Context, orderID string) (string, error) {
	url, err := c.rdb.Get(ctx, fmt.Sprintf("paylink:%s", orderID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return url, nil
}
