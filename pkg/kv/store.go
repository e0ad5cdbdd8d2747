package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or field is not found
var ErrNotFound = errors.New("not found")

// Store is the slice of a Redis-like store that session persistence needs.
// Implementations must be safe for concurrent use.
type Store interface {
	// String operations
	Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)

	// Key operations
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Set operations (used for the session topic index)
	SAdd(ctx context.Context, key string, members ...[]byte) (int64, error)
	SRem(ctx context.Context, key string, members ...[]byte) (int64, error)
	SMembers(ctx context.Context, key string) ([][]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}
