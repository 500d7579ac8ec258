// Package cache provides a Redis-backed read-through cache for catalog
// query results.
//
// Read-through pattern:
//   - On read:  Redis is checked first (cache HIT). On a miss the caller
//     queries Postgres and back-fills the cache for subsequent requests.
//   - On write: the mutated namespaces are invalidated; the next read
//     repopulates. Values are never authoritative — every entry carries a
//     TTL, so a lost invalidation self-heals within the TTL window.
//
// A cache failure is never fatal for a read path: callers treat any error
// other than ErrNotFound as a miss and fall back to Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"go-catalog-service/internal/metrics"
)

// TTLs per key family. List, detail and search results tolerate an hour of
// staleness; per-user carts are mutated often and get five minutes.
const (
	DefaultTTL = time.Hour
	CartTTL    = 5 * time.Minute
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Client wraps the Redis client and exposes keyed get/set/invalidate
// operations over JSON-serialized values.
type Client struct {
	rdb *redis.Client
}

// New creates a Redis client and verifies the connection with a PING.
func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

// Close shuts down the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get fetches the value stored under key and unmarshals it into dest.
// Returns ErrNotFound when the key does not exist or has expired.
func (c *Client) Get(ctx context.Context, key Key, dest any) error {
	data, err := c.rdb.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheRequests.WithLabelValues(string(key.ns), "miss").Inc()
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	metrics.CacheRequests.WithLabelValues(string(key.ns), "hit").Inc()
	return json.Unmarshal(data, dest)
}

// Set serialises val and stores it under key with the given TTL.
func (c *Client) Set(ctx context.Context, key Key, val any, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key.String(), data, ttl).Err()
}

// Delete removes the given keys. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}
	return c.rdb.Del(ctx, raw...).Err()
}

// DeletePattern removes every key matching the glob, using SCAN rather than
// KEYS so a large keyspace does not block the Redis event loop. This is the
// accepted over-invalidation strategy: a product write clears all cached
// product lists rather than tracking which lists the product appears in.
func (c *Client) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
