// Package cache defines the port for caching tool results.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-valued key-value store with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
