package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

const (
	subjectDisputeApproved = "Your Dispute has been Resolved"
	subjectDisputeDenied   = "Your Dispute has been Denied"
)

// AddDispute records a pending dispute on a transaction the actor owns, or on any transaction for admins.
func (s *Service) AddDispute(ctx context.Context, actor domain.Actor, transactionID string, req AddDisputeRequest) (DisputeResponse, error) {
	reason, err := domain.ValidateDisputeReason(req.Reason)
	if err != nil {
		return DisputeResponse{}, err
	}
	txID, err := domain.ParseID("id", transactionID)
	if err != nil {
		return DisputeResponse{}, err
	}
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return DisputeResponse{}, notFoundAs(err, "transaction not found")
	}
	if !actor.CanAccess(tx.UserID) {
		return DisputeResponse{}, fmt.Errorf("%w: transaction belongs to another user", domain.ErrForbidden)
	}

	now := s.nowFn()
	dispute := domain.Dispute{
		DisputeID:     uuid.New(),
		TransactionID: tx.TransactionID,
		RaisedBy:      actor.UserID,
		Reason:        reason,
		Status:        domain.DisputeStatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	evt, err := s.newOutboxEvent(domain.EventDisputeCreated, tx.TransactionID.String(), disputeEvent(dispute), now)
	if err != nil {
		return DisputeResponse{}, err
	}
	stored, err := s.disputes.CreateWithOutbox(ctx, dispute, []ports.OutboxEvent{evt})
	if err != nil {
		return DisputeResponse{}, err
	}
	return toDisputeResponse(stored), nil
}

// ListTransactionDisputes returns the disputes raised on one transaction, empty when there are none.
func (s *Service) ListTransactionDisputes(ctx context.Context, actor domain.Actor, transactionID string) ([]DisputeResponse, error) {
	txID, err := domain.ParseID("id", transactionID)
	if err != nil {
		return nil, err
	}
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return nil, notFoundAs(err, "transaction not found")
	}
	if !actor.CanAccess(tx.UserID) {
		return nil, fmt.Errorf("%w: transaction belongs to another user", domain.ErrForbidden)
	}
	items, err := s.disputes.ListByTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	out := make([]DisputeResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toDisputeResponse(d))
	}
	return out, nil
}

// GetDispute loads a single dispute by id.
func (s *Service) GetDispute(ctx context.Context, id string) (DisputeResponse, error) {
	disputeID, err := domain.ParseID("id", id)
	if err != nil {
		return DisputeResponse{}, err
	}
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, notFoundAs(err, "dispute not found")
	}
	return toDisputeResponse(d), nil
}

// ResolveDispute settles a pending dispute without notifying anyone.
func (s *Service) ResolveDispute(ctx context.Context, id string, req ResolveDisputeRequest) (DisputeResponse, error) {
	outcome, err := domain.ValidateDisputeOutcome(req.Status)
	if err != nil {
		return DisputeResponse{}, err
	}
	disputeID, err := domain.ParseID("id", id)
	if err != nil {
		return DisputeResponse{}, err
	}
	current, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, notFoundAs(err, "dispute not found")
	}
	return s.settle(ctx, current, outcome, req.Resolution, nil)
}

// ApproveDispute resolves a pending dispute as approved and queues the notice to the transaction owner.
func (s *Service) ApproveDispute(ctx context.Context, id string) (DisputeResponse, error) {
	return s.settleWithNotice(ctx, id, domain.DisputeStatusResolved, domain.ResolutionApproved, subjectDisputeApproved,
		func(txID uuid.UUID) string {
			return fmt.Sprintf("Dear User,\n\nYour dispute regarding transaction #%s has been resolved and approved by the admin.\n\nResolution: %s.\n\nThank you for your patience.\n", txID, domain.ResolutionApproved)
		})
}

// DenyDispute denies a pending dispute and queues the notice to the transaction owner.
func (s *Service) DenyDispute(ctx context.Context, id string) (DisputeResponse, error) {
	return s.settleWithNotice(ctx, id, domain.DisputeStatusDenied, domain.ResolutionDenied, subjectDisputeDenied,
		func(txID uuid.UUID) string {
			return fmt.Sprintf("Dear User, your dispute regarding transaction #%s has been denied by the admin.", txID)
		})
}

// settleWithNotice requires a deliverable owner email before anything changes, then commits the
// outcome and the email request together.
func (s *Service) settleWithNotice(ctx context.Context, id string, outcome domain.DisputeStatus, resolution, subject string, body func(uuid.UUID) string) (DisputeResponse, error) {
	disputeID, err := domain.ParseID("id", id)
	if err != nil {
		return DisputeResponse{}, err
	}
	current, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, notFoundAs(err, "dispute not found")
	}
	address, err := s.disputeOwnerEmail(ctx, current)
	if err != nil {
		return DisputeResponse{}, err
	}
	email, err := s.emailRequestEvent(address, subject, body(current.TransactionID), current.TransactionID.String(), s.nowFn())
	if err != nil {
		return DisputeResponse{}, err
	}
	return s.settle(ctx, current, outcome, resolution, []ports.OutboxEvent{email})
}

func (s *Service) settle(ctx context.Context, current domain.Dispute, outcome domain.DisputeStatus, resolution string, extra []ports.OutboxEvent) (DisputeResponse, error) {
	settled, err := current.Settle(outcome, resolution, s.nowFn())
	if err != nil {
		return DisputeResponse{}, err
	}
	evt, err := s.newOutboxEvent(domain.EventDisputeResolved, settled.TransactionID.String(), disputeEvent(settled), settled.UpdatedAt)
	if err != nil {
		return DisputeResponse{}, err
	}
	stored, err := s.disputes.SettleWithOutbox(ctx, settled, current.Version, append([]ports.OutboxEvent{evt}, extra...))
	if err != nil {
		return DisputeResponse{}, err
	}
	return toDisputeResponse(stored), nil
}

func (s *Service) disputeOwnerEmail(ctx context.Context, d domain.Dispute) (string, error) {
	missing := fmt.Errorf("%w: transaction or user email information is missing", domain.ErrInvalidInput)
	tx, err := s.transactions.GetByID(ctx, d.TransactionID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", missing
	}
	if err != nil {
		return "", err
	}
	owner, err := s.users.GetByID(ctx, tx.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", missing
	}
	if err != nil {
		return "", err
	}
	return owner.DeliverableEmail()
}
