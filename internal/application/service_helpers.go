package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

func hashRequest(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// reserveIdempotency returns the stored response when the key was already completed for the same request.
func (s *Service) reserveIdempotency(ctx context.Context, key string, request any) ([]byte, error) {
	if key == "" || s.idempotency == nil {
		return nil, nil
	}
	existing, err := s.idempotency.Reserve(ctx, key, hashRequest(request), s.cfg.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if existing.RequestHash != hashRequest(request) {
		return nil, fmt.Errorf("%w: key reused with a different request", domain.ErrIdempotencyConflict)
	}
	if !existing.Completed {
		return nil, fmt.Errorf("%w: request is still in progress", domain.ErrIdempotencyConflict)
	}
	return existing.ResponseBody, nil
}

func (s *Service) completeIdempotency(ctx context.Context, key string, request any, statusCode int, response any) {
	if key == "" || s.idempotency == nil {
		return
	}
	body, err := json.Marshal(response)
	if err == nil {
		err = s.idempotency.Complete(ctx, key, ports.IdempotencyRecord{
			RequestHash:  hashRequest(request),
			ResponseCode: statusCode,
			ResponseBody: body,
			Completed:    true,
		}, s.cfg.IdempotencyTTL)
	}
	if err != nil {
		logWarn(ctx, "complete_idempotency", "idempotency record not stored", err)
	}
}

func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		logWarn(ctx, "release_idempotency", "idempotency key not released", err)
	}
}

func appLogger() *slog.Logger {
	return slog.Default().With(
		"module", "application",
		"layer", "application",
	)
}

func logWarn(ctx context.Context, operation, msg string, err error, fields ...any) {
	args := append([]any{
		"operation", operation,
		"outcome", "failure",
		"error", err,
	}, fields...)
	appLogger().WarnContext(ctx, msg, args...)
}

func logError(ctx context.Context, operation, msg string, err error, fields ...any) {
	args := append([]any{
		"operation", operation,
		"outcome", "failure",
		"error", err,
	}, fields...)
	appLogger().ErrorContext(ctx, msg, args...)
}

// normalizeIdempotencyKey scopes the client key to the caller so two users never share a stored response.
func normalizeIdempotencyKey(actor domain.Actor, raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	if len(key) > 128 {
		key = key[:128]
	}
	return actor.UserID.String() + ":" + key
}
