package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/barter-exchange/internal/ports"
)

type idempotencyEntry struct {
	RequestHash  string `json:"request_hash"`
	ResponseCode int    `json:"response_code,omitempty"`
	ResponseBody []byte `json:"response_body,omitempty"`
	Completed    bool   `json:"completed"`
}

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func idempotencyKey(key string) string { return "exchange:idem:" + key }

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (*ports.IdempotencyRecord, error) {
	raw, err := json.Marshal(idempotencyEntry{RequestHash: requestHash})
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, idempotencyKey(key), raw, ttl).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	stored, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Released between SETNX and GET; treat as in flight so the caller retries.
			return &ports.IdempotencyRecord{RequestHash: requestHash}, nil
		}
		return nil, err
	}
	var entry idempotencyEntry
	if err := json.Unmarshal(stored, &entry); err != nil {
		return nil, err
	}
	return &ports.IdempotencyRecord{
		RequestHash:  entry.RequestHash,
		ResponseCode: entry.ResponseCode,
		ResponseBody: entry.ResponseBody,
		Completed:    entry.Completed,
	}, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, record ports.IdempotencyRecord, ttl time.Duration) error {
	raw, err := json.Marshal(idempotencyEntry{
		RequestHash:  record.RequestHash,
		ResponseCode: record.ResponseCode,
		ResponseBody: record.ResponseBody,
		Completed:    true,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyKey(key), raw, ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKey(key)).Err()
}
