package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced transaction, dispute, user or product does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput covers missing or malformed request fields and filters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEncryption aborts a write before anything is persisted.
	ErrEncryption = errors.New("encryption failed")
	// ErrDecryption is returned for malformed IVs, unknown key ids and ciphertext that does not
	// open under the stored key.
	ErrDecryption = errors.New("decryption failed")
	// ErrNotification signals a delivery failure on a path where the notification is required.
	ErrNotification        = errors.New("notification delivery failed")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	// ErrClaimLost means an outbox lease expired or was taken over before the row was marked.
	ErrClaimLost = errors.New("outbox claim lost")
)
