package cache

import (
	"context"
	"time"
)

// Store is the answer-cache abstraction: string payloads under hashed keys
// with TTL expiry. Backed by Redis in production and by the in-memory
// store in tests.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
