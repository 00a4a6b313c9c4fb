package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/barter-exchange/internal/domain"
)

const adminsKey = "exchange:admins"

type RedisAdminCache struct {
	client *redis.Client
}

func NewRedisAdminCache(client *redis.Client) *RedisAdminCache {
	return &RedisAdminCache{client: client}
}

func (c *RedisAdminCache) GetAdmins(ctx context.Context) ([]domain.User, bool, error) {
	raw, err := c.client.Get(ctx, adminsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var admins []domain.User
	if err := json.Unmarshal(raw, &admins); err != nil {
		return nil, false, err
	}
	return admins, true, nil
}

func (c *RedisAdminCache) SetAdmins(ctx context.Context, admins []domain.User, ttl time.Duration) error {
	raw, err := json.Marshal(admins)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, adminsKey, raw, ttl).Err()
}

func (c *RedisAdminCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, adminsKey).Err()
}
