package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Known transaction types. The set is informational; any short non-empty type is accepted.
const (
	TransactionTypeBarter = "barter"
	TransactionTypeBid    = "bid"
	TransactionTypeBuy    = "buy"
	TransactionTypeResell = "resell"
)

const maxTransactionTypeLength = 64

// SealedField is an encrypted value at rest. Ciphertext and IV are hex encoded.
type SealedField struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	KeyID      string `json:"key_id"`
}

type Transaction struct {
	TransactionID   uuid.UUID         `json:"transaction_id"`
	UserID          uuid.UUID         `json:"user_id"`
	ProductID       uuid.UUID         `json:"product_id"`
	TransactionType string            `json:"transaction_type"`
	Amount          SealedField       `json:"amount"`
	Description     SealedField       `json:"description"`
	Status          TransactionStatus `json:"status"`
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// TransactionFilter narrows list queries. Zero values are ignored.
type TransactionFilter struct {
	TransactionType string
	UserID          *uuid.UUID
	Status          TransactionStatus
}

// ValidateStatusFilter accepts every stored status, including pending.
func ValidateStatusFilter(status string) (TransactionStatus, error) {
	s := TransactionStatus(strings.ToLower(strings.TrimSpace(status)))
	switch s {
	case "":
		return "", nil
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction status %q", ErrInvalidInput, status)
	}
}

// ValidateStatusUpdate accepts only the statuses a transaction can be moved to.
func ValidateStatusUpdate(status string) (TransactionStatus, error) {
	s := TransactionStatus(strings.ToLower(strings.TrimSpace(status)))
	switch s {
	case TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: invalid transaction status", ErrInvalidInput)
	}
}

func ValidateTransactionType(raw string) (string, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return "", fmt.Errorf("%w: transactionType is required", ErrInvalidInput)
	}
	if len(t) > maxTransactionTypeLength {
		return "", fmt.Errorf("%w: transactionType is too long", ErrInvalidInput)
	}
	return t, nil
}

// ParseAmount returns the canonical decimal string for a positive amount.
func ParseAmount(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: amount must be a decimal number", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	return amount.String(), nil
}

func ParseID(field, raw string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid id", ErrInvalidInput, field)
	}
	return id, nil
}
