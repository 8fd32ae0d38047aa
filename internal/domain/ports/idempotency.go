package ports

import (
	"context"
	"time"
)

// IdempotencyStore deduplicates gateway calls by key
type IdempotencyStore interface {
	// Acquire marks key as in flight. It returns the stored result when a
	// previous call completed, or acquired=false when another caller holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (stored []byte, acquired bool, err error)
	// Complete stores the final result for key
	Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error
	// Abandon drops the in-flight marker so the call can be retried
	Abandon(ctx context.Context, key string) error
}
