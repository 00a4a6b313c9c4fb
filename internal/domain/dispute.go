package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DisputeStatus string

const (
	DisputeStatusPending  DisputeStatus = "pending"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusDenied   DisputeStatus = "denied"
)

const (
	ResolutionDefault  = "No resolution provided"
	ResolutionApproved = "Approved by admin"
	ResolutionDenied   = "Denied by admin"
)

const maxReasonLength = 2000

type Dispute struct {
	DisputeID     uuid.UUID     `json:"dispute_id"`
	TransactionID uuid.UUID     `json:"transaction_id"`
	RaisedBy      uuid.UUID     `json:"raised_by"`
	Reason        string        `json:"reason"`
	Status        DisputeStatus `json:"status"`
	Resolution    string        `json:"resolution,omitempty"`
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
}

func ValidateDisputeReason(raw string) (string, error) {
	reason := strings.TrimSpace(raw)
	if reason == "" {
		return "", fmt.Errorf("%w: please provide a reason for the dispute", ErrInvalidInput)
	}
	if len(reason) > maxReasonLength {
		return "", fmt.Errorf("%w: reason is too long", ErrInvalidInput)
	}
	return reason, nil
}

func ValidateDisputeOutcome(status string) (DisputeStatus, error) {
	s := DisputeStatus(strings.ToLower(strings.TrimSpace(status)))
	switch s {
	case DisputeStatusResolved, DisputeStatusDenied:
		return s, nil
	default:
		return "", fmt.Errorf("%w: invalid status for dispute resolution", ErrInvalidInput)
	}
}

// ResolutionOrDefault keeps the resolution text non-empty once a dispute leaves pending.
func ResolutionOrDefault(resolution string) string {
	if r := strings.TrimSpace(resolution); r != "" {
		return r
	}
	return ResolutionDefault
}

// Settle moves a pending dispute to its outcome.
func (d Dispute) Settle(status DisputeStatus, resolution string, at time.Time) (Dispute, error) {
	if d.Status != DisputeStatusPending {
		return Dispute{}, fmt.Errorf("%w: dispute already %s", ErrConflict, d.Status)
	}
	d.Status = status
	d.Resolution = ResolutionOrDefault(resolution)
	d.UpdatedAt = at
	resolvedAt := at
	d.ResolvedAt = &resolvedAt
	return d, nil
}
