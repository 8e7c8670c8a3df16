package ports

import (
	"context"
	"time"
)

// EventDedupStore remembers already-processed upstream event ids so webhook
// redelivery does not produce duplicate conversions or touchpoints.
type EventDedupStore interface {
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
}

// RateLimitStore counts hits per key over a rolling window. Used to shed
// abusive ingest traffic on the public tracking endpoints.
type RateLimitStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}
