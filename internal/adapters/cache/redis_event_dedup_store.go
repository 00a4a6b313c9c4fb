package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisEventDedupStore struct {
	client *redis.Client
}

func NewRedisEventDedupStore(client *redis.Client) *RedisEventDedupStore {
	return &RedisEventDedupStore{client: client}
}

func (s *RedisEventDedupStore) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, "exchange:event:"+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisEventDedupStore) MarkProcessed(ctx context.Context, eventID, eventType string, ttl time.Duration) error {
	return s.client.SetNX(ctx, "exchange:event:"+eventID, eventType, ttl).Err()
}
