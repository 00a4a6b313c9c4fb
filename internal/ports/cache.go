package ports

import (
	"context"
	"time"

	"github.com/viralforge/barter-exchange/internal/domain"
)

// AdminCache holds the resolved admin set between directory changes.
type AdminCache interface {
	GetAdmins(ctx context.Context) ([]domain.User, bool, error)
	SetAdmins(ctx context.Context, admins []domain.User, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type IdempotencyRecord struct {
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	Completed    bool
}

type IdempotencyStore interface {
	// Reserve returns the existing record when the key is already taken.
	Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (*IdempotencyRecord, error)
	Complete(ctx context.Context, key string, record IdempotencyRecord, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type EventDedupStore interface {
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, ttl time.Duration) error
}
