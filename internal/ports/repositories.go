package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
)

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, events ...OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// TransactionView is a transaction with the owning user and product attached.
type TransactionView struct {
	Transaction domain.Transaction
	User        *domain.User
	Product     *domain.Product
}

// StatusChange is a version-guarded status write.
type StatusChange struct {
	TransactionID   uuid.UUID
	ExpectedVersion int
	Status          domain.TransactionStatus
	UpdatedAt       time.Time
}

type TransactionRepository interface {
	// CreateWithOutbox persists the transaction and its events atomically.
	CreateWithOutbox(ctx context.Context, tx domain.Transaction, events []OutboxEvent) (domain.Transaction, error)
	GetByID(ctx context.Context, transactionID uuid.UUID) (domain.Transaction, error)
	List(ctx context.Context, filter domain.TransactionFilter) ([]TransactionView, error)
	// UpdateStatusWithOutbox returns domain.ErrConflict when ExpectedVersion no longer matches.
	UpdateStatusWithOutbox(ctx context.Context, change StatusChange, events []OutboxEvent) (domain.Transaction, error)
}

type DisputeRepository interface {
	CreateWithOutbox(ctx context.Context, dispute domain.Dispute, events []OutboxEvent) (domain.Dispute, error)
	GetByID(ctx context.Context, disputeID uuid.UUID) (domain.Dispute, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.Dispute, error)
	// SettleWithOutbox writes status and resolution if the stored version equals expectedVersion.
	SettleWithOutbox(ctx context.Context, settled domain.Dispute, expectedVersion int, events []OutboxEvent) (domain.Dispute, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	ListAdmins(ctx context.Context) ([]domain.User, error)
	Upsert(ctx context.Context, user domain.User) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type ProductRepository interface {
	GetByID(ctx context.Context, productID uuid.UUID) (domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) error
}
