package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const clientName = "barter-exchange"

// Connect builds a client from a redis://, rediss:// or unix:// URL, or a bare host:port.
// The connection is established lazily; readiness probes surface an unreachable server.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	opt := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	}
	if opt.ClientName == "" {
		opt.ClientName = clientName
	}
	return redis.NewClient(opt), nil
}
