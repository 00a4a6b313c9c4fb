package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster pushes real-time messages over Redis pub/sub for the socket gateway.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, message []byte) error {
	return b.client.Publish(ctx, channel, message).Err()
}
