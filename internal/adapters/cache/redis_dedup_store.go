package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventDedupStore remembers processed upstream event ids with TTL.
type RedisEventDedupStore struct {
	client *redis.Client
}

// NewRedisEventDedupStore creates an event dedup cache adapter.
func NewRedisEventDedupStore(client *redis.Client) *RedisEventDedupStore {
	return &RedisEventDedupStore{client: client}
}

func (s *RedisEventDedupStore) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, "attr:event:"+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisEventDedupStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Set(ctx, "attr:event:"+eventID, "1", ttl).Err()
}
