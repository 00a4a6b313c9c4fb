package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

const (
	subjectTransactionCreated = "Transaction Created Successfully"
	subjectTransactionAlert   = "New Transaction Alert"
	subjectTransactionStatus  = "Transaction Status Update"
)

type createTransactionInput struct {
	userID          uuid.UUID
	productID       uuid.UUID
	transactionType string
	amount          string
	description     string
}

func validateCreateTransaction(req CreateTransactionRequest) (createTransactionInput, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ProductID) == "" ||
		strings.TrimSpace(req.TransactionType) == "" || strings.TrimSpace(req.Amount) == "" {
		return createTransactionInput{}, fmt.Errorf("%w: missing required fields: userId, productId, transactionType, or amount", domain.ErrInvalidInput)
	}
	userID, err := domain.ParseID("userId", req.UserID)
	if err != nil {
		return createTransactionInput{}, err
	}
	productID, err := domain.ParseID("productId", req.ProductID)
	if err != nil {
		return createTransactionInput{}, err
	}
	txType, err := domain.ValidateTransactionType(req.TransactionType)
	if err != nil {
		return createTransactionInput{}, err
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return createTransactionInput{}, err
	}
	return createTransactionInput{
		userID:          userID,
		productID:       productID,
		transactionType: txType,
		amount:          amount,
		description:     strings.TrimSpace(req.Description),
	}, nil
}

// CreateTransaction persists a sealed transaction and fans the announcement out to the owner and every admin.
// Delivery problems after the commit are reported and re-queued, never returned as errors.
func (s *Service) CreateTransaction(ctx context.Context, actor domain.Actor, req CreateTransactionRequest, idempotencyKey string) (CreateTransactionResult, error) {
	input, err := validateCreateTransaction(req)
	if err != nil {
		return CreateTransactionResult{}, err
	}
	if !actor.CanAccess(input.userID) {
		return CreateTransactionResult{}, fmt.Errorf("%w: cannot create transactions for another user", domain.ErrForbidden)
	}

	key := normalizeIdempotencyKey(actor, idempotencyKey)
	replay, err := s.reserveIdempotency(ctx, key, req)
	if err != nil {
		return CreateTransactionResult{}, err
	}
	if replay != nil {
		var prior CreateTransactionResult
		if err := json.Unmarshal(replay, &prior); err == nil {
			return prior, nil
		}
	}

	result, err := s.createTransaction(ctx, input)
	if err != nil {
		s.releaseIdempotency(ctx, key)
		return CreateTransactionResult{}, err
	}
	s.completeIdempotency(ctx, key, req, 201, result)
	return result, nil
}

func (s *Service) createTransaction(ctx context.Context, input createTransactionInput) (CreateTransactionResult, error) {
	owner, err := s.users.GetByID(ctx, input.userID)
	if err != nil {
		return CreateTransactionResult{}, notFoundAs(err, "user not found")
	}
	if _, err := s.products.GetByID(ctx, input.productID); err != nil {
		return CreateTransactionResult{}, notFoundAs(err, "product not found")
	}
	admins, err := s.resolveAdmins(ctx)
	if err != nil {
		return CreateTransactionResult{}, err
	}

	sealedAmount, err := s.cipher.Encrypt(input.amount)
	if err != nil {
		return CreateTransactionResult{}, err
	}
	sealedDescription, err := s.cipher.Encrypt(input.description)
	if err != nil {
		return CreateTransactionResult{}, err
	}

	now := s.nowFn()
	tx := domain.Transaction{
		TransactionID:   uuid.New(),
		UserID:          input.userID,
		ProductID:       input.productID,
		TransactionType: input.transactionType,
		Amount:          sealedAmount,
		Description:     sealedDescription,
		Status:          domain.TransactionStatusPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.newOutboxEvent(domain.EventTransactionCreated, tx.TransactionID.String(), transactionEvent(tx, ""), now)
	if err != nil {
		return CreateTransactionResult{}, err
	}
	stored, err := s.transactions.CreateWithOutbox(ctx, tx, []ports.OutboxEvent{created})
	if err != nil {
		return CreateTransactionResult{}, err
	}

	result := CreateTransactionResult{Transaction: toTransactionResponse(stored)}
	// The record is committed; a client disconnect must not drop its notifications.
	result.Notifications = s.announceTransaction(context.WithoutCancel(ctx), stored, owner, admins)
	return result, nil
}

// announceTransaction sends the creation emails and the transactionCreated broadcast.
func (s *Service) announceTransaction(ctx context.Context, tx domain.Transaction, owner domain.User, admins []domain.User) NotificationSummary {
	var summary NotificationSummary
	amount, err := s.cipher.Decrypt(tx.Amount)
	if err == nil {
		var description string
		description, err = s.cipher.Decrypt(tx.Description)
		if err == nil {
			return s.fanOutCreated(ctx, tx, owner, admins, amount, description)
		}
	}
	logError(ctx, "announce_transaction", "stored transaction could not be opened for notification", err,
		"transaction_id", tx.TransactionID.String(),
	)
	summary.Failed = 1 + len(admins)
	return summary
}

func (s *Service) fanOutCreated(ctx context.Context, tx domain.Transaction, owner domain.User, admins []domain.User, amount, description string) NotificationSummary {
	details := fmt.Sprintf(
		"A new transaction has been created:\nUser ID: %s\nTransaction Type: %s\nProduct ID: %s\nAmount: %s\nDescription: %s\n",
		tx.UserID, tx.TransactionType, tx.ProductID, amount, description,
	)
	ownerRecipients := []Recipient{{Address: owner.Email, Channels: []string{owner.UserID.String()}}}
	adminRecipients := make([]Recipient, 0, len(admins))
	for _, admin := range admins {
		adminRecipients = append(adminRecipients, Recipient{Address: admin.Email, Channels: []string{admin.UserID.String()}})
	}

	ownerBody := "Hello, your transaction has been successfully created.\n\n" + details
	adminBody := "Admin Alert:\n\n" + details
	ownerReport := s.dispatcher.Notify(ctx, ownerRecipients, subjectTransactionCreated, ownerBody)
	adminReport := s.dispatcher.Notify(ctx, adminRecipients, subjectTransactionAlert, adminBody)

	summary := NotificationSummary{
		Delivered: len(ownerReport.Delivered) + len(adminReport.Delivered),
		Failed:    len(ownerReport.Failed) + len(adminReport.Failed),
	}
	summary.Requeued += s.requeueFailed(ctx, tx, ownerReport, subjectTransactionCreated, ownerBody)
	summary.Requeued += s.requeueFailed(ctx, tx, adminReport, subjectTransactionAlert, adminBody)

	payload := map[string]any{
		"transaction": map[string]any{
			"userId":          tx.UserID.String(),
			"productId":       tx.ProductID.String(),
			"transactionType": tx.TransactionType,
			"amount":          amount,
			"description":     description,
		},
	}
	channels := ChannelsOf(append(ownerRecipients, adminRecipients...))
	if err := s.dispatcher.Broadcast(ctx, domain.RealtimeTransactionCreated, payload, channels); err != nil {
		logWarn(ctx, "broadcast_transaction_created", "realtime broadcast failed", err,
			"transaction_id", tx.TransactionID.String(),
		)
	} else {
		summary.Broadcast = true
	}
	return summary
}

// requeueFailed hands failed deliveries with a usable address to the outbox relay.
func (s *Service) requeueFailed(ctx context.Context, tx domain.Transaction, report DispatchReport, subject, body string) int {
	if len(report.Failed) == 0 || s.outbox == nil {
		return 0
	}
	now := s.nowFn()
	events := make([]ports.OutboxEvent, 0, len(report.Failed))
	for _, failed := range report.Failed {
		if failed.Address == "" {
			continue
		}
		evt, err := s.emailRequestEvent(failed.Address, subject, body, tx.TransactionID.String(), now)
		if err != nil {
			logWarn(ctx, "requeue_email", "email request not sealed", err)
			continue
		}
		events = append(events, evt)
	}
	if len(events) == 0 {
		return 0
	}
	if err := s.outbox.Enqueue(ctx, events...); err != nil {
		logWarn(ctx, "requeue_email", "email retry not queued", err,
			"transaction_id", tx.TransactionID.String(),
		)
		return 0
	}
	return len(events)
}

func (s *Service) resolveAdmins(ctx context.Context) ([]domain.User, error) {
	if s.adminCache != nil {
		admins, ok, err := s.adminCache.GetAdmins(ctx)
		if err != nil {
			logWarn(ctx, "resolve_admins", "admin cache read failed", err)
		} else if ok && len(admins) > 0 {
			return admins, nil
		}
	}
	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, fmt.Errorf("%w: no admins found", domain.ErrNotFound)
	}
	if s.adminCache != nil {
		if err := s.adminCache.SetAdmins(ctx, admins, s.cfg.AdminCacheTTL); err != nil {
			logWarn(ctx, "resolve_admins", "admin cache write failed", err)
		}
	}
	return admins, nil
}

// ListTransactions returns an empty slice, not an error, when nothing matches.
func (s *Service) ListTransactions(ctx context.Context, q TransactionQuery) ([]TransactionResponse, error) {
	filter := domain.TransactionFilter{TransactionType: strings.TrimSpace(q.TransactionType)}
	if raw := strings.TrimSpace(q.UserID); raw != "" {
		userID, err := domain.ParseID("user", raw)
		if err != nil {
			return nil, err
		}
		filter.UserID = &userID
	}
	status, err := domain.ValidateStatusFilter(q.Status)
	if err != nil {
		return nil, err
	}
	filter.Status = status

	views, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toTransactionViewResponse(v))
	}
	return out, nil
}

// GetTransaction returns one sealed transaction when the actor owns it or is an admin.
func (s *Service) GetTransaction(ctx context.Context, actor domain.Actor, id string) (TransactionResponse, error) {
	txID, err := domain.ParseID("id", id)
	if err != nil {
		return TransactionResponse{}, err
	}
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return TransactionResponse{}, err
	}
	if !actor.CanAccess(tx.UserID) {
		return TransactionResponse{}, fmt.Errorf("%w: transaction belongs to another user", domain.ErrForbidden)
	}
	return toTransactionResponse(tx), nil
}

// UpdateTransactionStatus writes the new status guarded by the record version. Without an explicit
// version the write is retried against the latest copy; the owner email goes through the outbox.
func (s *Service) UpdateTransactionStatus(ctx context.Context, id string, req UpdateTransactionStatusRequest) (TransactionResponse, error) {
	status, err := domain.ValidateStatusUpdate(req.Status)
	if err != nil {
		return TransactionResponse{}, err
	}
	txID, err := domain.ParseID("id", id)
	if err != nil {
		return TransactionResponse{}, err
	}

	for attempt := 1; ; attempt++ {
		current, err := s.transactions.GetByID(ctx, txID)
		if err != nil {
			return TransactionResponse{}, err
		}
		if req.Version != nil && *req.Version != current.Version {
			return TransactionResponse{}, fmt.Errorf("%w: transaction version is %d", domain.ErrConflict, current.Version)
		}

		now := s.nowFn()
		next := current
		next.Status = status
		next.Version = current.Version + 1
		next.UpdatedAt = now
		events, err := s.statusChangeEvents(ctx, current, next)
		if err != nil {
			return TransactionResponse{}, err
		}
		updated, err := s.transactions.UpdateStatusWithOutbox(ctx, ports.StatusChange{
			TransactionID:   txID,
			ExpectedVersion: current.Version,
			Status:          status,
			UpdatedAt:       now,
		}, events)
		if err == nil {
			return toTransactionResponse(updated), nil
		}
		if !errors.Is(err, domain.ErrConflict) || req.Version != nil || attempt >= s.cfg.StatusUpdateRetries {
			return TransactionResponse{}, err
		}
	}
}

func (s *Service) statusChangeEvents(ctx context.Context, current, next domain.Transaction) ([]ports.OutboxEvent, error) {
	key := next.TransactionID.String()
	changed, err := s.newOutboxEvent(domain.EventTransactionStatusChanged, key, transactionEvent(next, current.Status), next.UpdatedAt)
	if err != nil {
		return nil, err
	}
	events := []ports.OutboxEvent{changed}

	owner, err := s.users.GetByID(ctx, next.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	address, addrErr := owner.DeliverableEmail()
	if err != nil || addrErr != nil {
		logWarn(ctx, "update_transaction_status", "owner has no deliverable email; status email skipped", errors.Join(err, addrErr),
			"transaction_id", key,
		)
		return events, nil
	}

	title := next.ProductID.String()
	if product, err := s.products.GetByID(ctx, next.ProductID); err == nil && product.Title != "" {
		title = product.Title
	}
	body := fmt.Sprintf("Your transaction for product %s has been %s.", title, next.Status)
	email, err := s.emailRequestEvent(address, subjectTransactionStatus, body, key, next.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return append(events, email), nil
}

func notFoundAs(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	}
	return err
}
