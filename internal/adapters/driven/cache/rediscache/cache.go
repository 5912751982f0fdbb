// Package rediscache shares the set of known indices between processes
// through a Redis set, so that only the first writer of a period asks the
// store to create its index.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.IndexCache = (*Cache)(nil)

// Cache is a driven.IndexCache backed by a Redis set.
type Cache struct {
	pool *redis.Pool
	key  string
}

// New creates a cache talking to the Redis server at addr.
func New(addr, key string) *Cache {
	return NewWithPool(&redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
	}, key)
}

// NewWithPool creates a cache on an existing pool.
func NewWithPool(pool *redis.Pool, key string) *Cache {
	return &Cache{pool: pool, key: key}
}

// Contains reports whether name is in the set.
func (c *Cache) Contains(ctx context.Context, name string) (bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: redis: %w", domain.ErrStoreUnavailable, err)
	}
	defer conn.Close()

	known, err := redis.Bool(conn.Do("SISMEMBER", c.key, name))
	if err != nil {
		return false, fmt.Errorf("%w: redis SISMEMBER: %w", domain.ErrStoreUnavailable, err)
	}
	return known, nil
}

// Add puts name into the set.
func (c *Cache) Add(ctx context.Context, name string) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: redis: %w", domain.ErrStoreUnavailable, err)
	}
	defer conn.Close()

	if _, err := conn.Do("SADD", c.key, name); err != nil {
		return fmt.Errorf("%w: redis SADD: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Names returns every cached index name.
func (c *Cache) Names(ctx context.Context) ([]string, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: redis: %w", domain.ErrStoreUnavailable, err)
	}
	defer conn.Close()

	names, err := redis.Strings(conn.Do("SMEMBERS", c.key))
	if err != nil {
		return nil, fmt.Errorf("%w: redis SMEMBERS: %w", domain.ErrStoreUnavailable, err)
	}
	return names, nil
}

// Close releases the pool.
func (c *Cache) Close() error {
	return c.pool.Close()
}
