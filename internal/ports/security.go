package ports

import (
	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
)

// FieldCipher seals sensitive values at rest.
type FieldCipher interface {
	Encrypt(plaintext string) (domain.SealedField, error)
	Decrypt(field domain.SealedField) (string, error)
}

type AuthClaims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

type TokenVerifier interface {
	Verify(raw string) (AuthClaims, error)
}
