package middleware

import (
	"context"
	"time"

	"github.com/charlesng35/engageflow/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// cacheRateStore counts requests in a fixed window held by a cache.Store.
type cacheRateStore struct {
	store cache.Store
}

// NewMemoryRateStore constructs a process-local rate store.
func NewMemoryRateStore() RateStore {
	return &cacheRateStore{store: cache.NewMemoryStore()}
}

// NewCacheRateStore shares counters through store, so every replica pointing
// at the same database enforces one limit.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return NewMemoryRateStore()
	}
	return &cacheRateStore{store: store}
}

func (s *cacheRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
