package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
// The flow service caches parsed graphs in it and the rate limiter counts
// requests with IncrementWithTTL.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Purger is implemented by stores that need expired entries removed periodically.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
