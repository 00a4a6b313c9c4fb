package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the local read-model of an account owned by the identity service.
type User struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// DeliverableEmail returns the normalized address or an ErrInvalidInput when the account
// has no usable email.
func (u User) DeliverableEmail() (string, error) {
	raw := strings.TrimSpace(u.Email)
	if raw == "" {
		return "", fmt.Errorf("%w: transaction or user email information is missing", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || !strings.Contains(addr.Address, "@") {
		return "", fmt.Errorf("%w: invalid email address for the user", ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

func NormalizeRole(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

type Product struct {
	ProductID uuid.UUID `json:"product_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the authenticated caller of a use-case.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

func (a Actor) IsAdmin() bool { return NormalizeRole(a.Role) == RoleAdmin }

// CanAccess reports whether the actor may act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	return a.IsAdmin() || (a.UserID != uuid.Nil && a.UserID == ownerID)
}
