package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

func TestCreateTransactionSealsFieldsAndNotifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.CreateTransaction(ctx, f.ownerActor(), CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "barter",
		Amount:          "100",
		Description:     "test item",
	}, "")
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}
	if res.Transaction.Status != string(domain.TransactionStatusPending) || res.Transaction.Version != 1 {
		t.Fatalf("unexpected initial state: %+v", res.Transaction)
	}

	txID := uuid.MustParse(res.Transaction.ID)
	stored, err := f.transactions.GetByID(ctx, txID)
	if err != nil {
		t.Fatalf("stored transaction missing: %v", err)
	}
	if stored.Amount.Ciphertext == "100" || stored.Description.Ciphertext == "test item" {
		t.Fatalf("sensitive fields stored in plaintext: %+v", stored)
	}
	if stored.Amount.IV == stored.Description.IV {
		t.Fatalf("amount and description share an iv")
	}
	amount, err := f.cipher.Decrypt(stored.Amount)
	if err != nil || amount != "100" {
		t.Fatalf("amount did not round trip: %q %v", amount, err)
	}
	description, err := f.cipher.Decrypt(stored.Description)
	if err != nil || description != "test item" {
		t.Fatalf("description did not round trip: %q %v", description, err)
	}

	ownerMail := f.mailer.sentTo(f.owner.Email)
	if len(ownerMail) != 1 || ownerMail[0].Subject != "Transaction Created Successfully" {
		t.Fatalf("unexpected owner emails: %+v", ownerMail)
	}
	if !strings.Contains(ownerMail[0].Body, "Amount: 100") || !strings.Contains(ownerMail[0].Body, "Description: test item") {
		t.Fatalf("owner email missing details: %s", ownerMail[0].Body)
	}
	adminMail := f.mailer.sentTo(f.admin.Email)
	if len(adminMail) != 1 || adminMail[0].Subject != "New Transaction Alert" {
		t.Fatalf("unexpected admin emails: %+v", adminMail)
	}

	channels := f.broadcaster.channels()
	want := []string{"test:global", "test:user:" + f.owner.UserID.String(), "test:user:" + f.admin.UserID.String()}
	if strings.Join(channels, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected broadcast channels: got=%v want=%v", channels, want)
	}
	var msg struct {
		Event   string `json:"event"`
		Payload struct {
			Transaction struct {
				Amount string `json:"amount"`
			} `json:"transaction"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(f.broadcaster.messages[0].message, &msg); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if msg.Event != "transactionCreated" || msg.Payload.Transaction.Amount != "100" {
		t.Fatalf("unexpected broadcast message: %+v", msg)
	}

	if res.Notifications.Delivered != 2 || res.Notifications.Failed != 0 || !res.Notifications.Broadcast {
		t.Fatalf("unexpected notification summary: %+v", res.Notifications)
	}
	if got := len(f.outbox.ofType(domain.EventTransactionCreated)); got != 1 {
		t.Fatalf("expected one transaction.created event, got %d", got)
	}
}

func TestCreateTransactionRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	valid := CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "barter",
		Amount:          "100",
	}
	cases := map[string]func(r *CreateTransactionRequest){
		"missing user":     func(r *CreateTransactionRequest) { r.UserID = "" },
		"missing product":  func(r *CreateTransactionRequest) { r.ProductID = " " },
		"missing type":     func(r *CreateTransactionRequest) { r.TransactionType = "" },
		"missing amount":   func(r *CreateTransactionRequest) { r.Amount = "" },
		"malformed amount": func(r *CreateTransactionRequest) { r.Amount = "ten" },
		"zero amount":      func(r *CreateTransactionRequest) { r.Amount = "0" },
		"malformed user":   func(r *CreateTransactionRequest) { r.UserID = "user-1" },
	}
	for name, mutate := range cases {
		req := valid
		mutate(&req)
		_, err := f.service.CreateTransaction(context.Background(), f.adminActor(), req, "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
	if len(f.transactions.items) != 0 || len(f.mailer.sent) != 0 {
		t.Fatalf("invalid requests must not persist or notify")
	}
}

func TestCreateTransactionMissingUserOrAdmins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	stranger := uuid.New()
	_, err := f.service.CreateTransaction(ctx, f.adminActor(), CreateTransactionRequest{
		UserID:          stranger.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "bid",
		Amount:          "12.50",
	}, "")
	if !errors.Is(err, domain.ErrNotFound) || !strings.Contains(err.Error(), "user not found") {
		t.Fatalf("expected user not found, got %v", err)
	}

	if err := f.users.Delete(ctx, f.admin.UserID); err != nil {
		t.Fatalf("delete admin: %v", err)
	}
	_, err = f.service.CreateTransaction(ctx, f.ownerActor(), CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "bid",
		Amount:          "12.50",
	}, "")
	if !errors.Is(err, domain.ErrNotFound) || !strings.Contains(err.Error(), "no admins found") {
		t.Fatalf("expected no admins error, got %v", err)
	}
	if len(f.transactions.items) != 0 {
		t.Fatalf("nothing should be persisted without admins")
	}
}

func TestCreateTransactionForAnotherUserForbidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	actor := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	_, err := f.service.CreateTransaction(context.Background(), actor, CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "buy",
		Amount:          "5",
	}, "")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateTransactionDeliveryFailureIsRequeued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mailer.fail[f.owner.Email] = -1

	res, err := f.service.CreateTransaction(context.Background(), f.ownerActor(), CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "barter",
		Amount:          "100",
		Description:     "test item",
	}, "")
	if err != nil {
		t.Fatalf("delivery failure must not fail creation: %v", err)
	}
	if res.Notifications.Failed != 1 || res.Notifications.Delivered != 1 || res.Notifications.Requeued != 1 {
		t.Fatalf("unexpected notification summary: %+v", res.Notifications)
	}
	if got := f.mailer.callsTo(f.owner.Email); got != 2 {
		t.Fatalf("expected 2 delivery attempts for owner, got %d", got)
	}
	if len(f.mailer.sentTo(f.admin.Email)) != 1 {
		t.Fatalf("admin delivery should be unaffected by owner failure")
	}

	requests := f.outbox.ofType(domain.EventNotificationEmailRequested)
	if len(requests) != 1 {
		t.Fatalf("expected one queued email request, got %d", len(requests))
	}
	if bytes.Contains(requests[0].Payload, []byte("test item")) {
		t.Fatalf("queued email request leaks transaction details")
	}

	delete(f.mailer.fail, f.owner.Email)
	if err := f.service.DeliverQueuedEmail(context.Background(), requests[0].Payload); err != nil {
		t.Fatalf("relay delivery failed: %v", err)
	}
	ownerMail := f.mailer.sentTo(f.owner.Email)
	if len(ownerMail) != 1 || !strings.Contains(ownerMail[0].Body, "Description: test item") {
		t.Fatalf("relayed email not delivered: %+v", ownerMail)
	}
}

func TestCreateTransactionNotifiesAfterClientDisconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.outbox.honorCancel = true
	f.mailer.fail[f.owner.Email] = -1
	f.mailer.fail[f.admin.Email] = -1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.mailer.onSend = cancel

	res, err := f.service.CreateTransaction(ctx, f.ownerActor(), CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "barter",
		Amount:          "100",
	}, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if res.Notifications.Failed != 2 || res.Notifications.Requeued != 2 || !res.Notifications.Broadcast {
		t.Fatalf("cancelled request lost its notifications: %+v", res.Notifications)
	}
	if got := f.mailer.callsTo(f.owner.Email); got != 2 {
		t.Fatalf("owner delivery should keep retrying after disconnect, got %d attempts", got)
	}
	if got := len(f.outbox.ofType(domain.EventNotificationEmailRequested)); got != 2 {
		t.Fatalf("expected two queued email requests, got %d", got)
	}
}

func TestIdempotencyKeyIsScopedToCaller(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := domain.User{UserID: uuid.New(), Email: "second-admin@example.com", Role: domain.RoleAdmin}
	_ = f.users.Upsert(context.Background(), other)
	otherActor := domain.Actor{UserID: other.UserID, Email: other.Email, Role: domain.RoleAdmin}
	req := CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "barter",
		Amount:          "42",
	}

	first, err := f.service.CreateTransaction(context.Background(), f.adminActor(), req, "shared-key")
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	second, err := f.service.CreateTransaction(context.Background(), otherActor, req, "shared-key")
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if first.Transaction.ID == second.Transaction.ID {
		t.Fatalf("another caller received a stored response for the same key")
	}
	if len(f.transactions.items) != 2 {
		t.Fatalf("expected two transactions, got %d", len(f.transactions.items))
	}
}

func TestCreateTransactionIdempotentReplay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	req := CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: "barter",
		Amount:          "42",
	}

	first, err := f.service.CreateTransaction(ctx, f.ownerActor(), req, "idem-1")
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	second, err := f.service.CreateTransaction(ctx, f.ownerActor(), req, "idem-1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if first.Transaction.ID != second.Transaction.ID {
		t.Fatalf("replay returned a different transaction: %s vs %s", first.Transaction.ID, second.Transaction.ID)
	}
	if len(f.transactions.items) != 1 {
		t.Fatalf("replay must not persist twice")
	}

	req.Amount = "43"
	if _, err := f.service.CreateTransaction(ctx, f.ownerActor(), req, "idem-1"); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestAdminListIsCached(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createTransaction(t)
	f.createTransaction(t)
	if f.users.listCalls != 1 {
		t.Fatalf("expected admins to be listed once, got %d", f.users.listCalls)
	}
}

func TestListTransactions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.service.ListTransactions(ctx, TransactionQuery{Status: "completed"})
	if err != nil {
		t.Fatalf("empty list should not fail: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", empty)
	}

	created := f.createTransaction(t)
	items, err := f.service.ListTransactions(ctx, TransactionQuery{UserID: f.owner.UserID.String(), Status: "pending"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("unexpected list result: %+v", items)
	}
	if items[0].User == nil || items[0].User.Email != f.owner.Email {
		t.Fatalf("expected owner summary, got %+v", items[0].User)
	}
	if items[0].Product == nil || items[0].Product.Title != f.product.Title {
		t.Fatalf("expected product summary, got %+v", items[0].Product)
	}

	if _, err := f.service.ListTransactions(ctx, TransactionQuery{Status: "archived"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid status filter, got %v", err)
	}
	if _, err := f.service.ListTransactions(ctx, TransactionQuery{UserID: "nope"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid user filter, got %v", err)
	}
}

func TestGetTransactionAccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.createTransaction(t)
	ctx := context.Background()

	if _, err := f.service.GetTransaction(ctx, f.ownerActor(), created.ID); err != nil {
		t.Fatalf("owner should read own transaction: %v", err)
	}
	if _, err := f.service.GetTransaction(ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}, created.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.service.GetTransaction(ctx, f.adminActor(), uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateTransactionStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)

	updated, err := f.service.UpdateTransactionStatus(ctx, created.ID, UpdateTransactionStatusRequest{Status: "completed"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status != "completed" || updated.Version != 2 {
		t.Fatalf("unexpected updated transaction: %+v", updated)
	}
	if len(f.outbox.ofType(domain.EventTransactionStatusChanged)) != 1 {
		t.Fatalf("expected a status_changed event")
	}
	requests := f.outbox.ofType(domain.EventNotificationEmailRequested)
	if len(requests) != 1 {
		t.Fatalf("expected one status email request, got %d", len(requests))
	}

	before := len(f.mailer.sentTo(f.owner.Email))
	if err := f.service.DeliverQueuedEmail(ctx, requests[0].Payload); err != nil {
		t.Fatalf("deliver status email: %v", err)
	}
	mails := f.mailer.sentTo(f.owner.Email)
	if len(mails) != before+1 {
		t.Fatalf("status email not delivered")
	}
	last := mails[len(mails)-1]
	if last.Body != "Your transaction for product Vintage Camera has been completed." {
		t.Fatalf("unexpected status email body: %q", last.Body)
	}
}

func TestUpdateTransactionStatusRejectsInvalidStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)

	for _, status := range []string{"", "pending", "shipped"} {
		_, err := f.service.UpdateTransactionStatus(ctx, created.ID, UpdateTransactionStatusRequest{Status: status})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("status %q: expected invalid input, got %v", status, err)
		}
	}
	stored, _ := f.transactions.GetByID(ctx, uuid.MustParse(created.ID))
	if stored.Status != domain.TransactionStatusPending || stored.Version != 1 {
		t.Fatalf("record changed after rejected updates: %+v", stored)
	}
	if _, err := f.service.UpdateTransactionStatus(ctx, uuid.NewString(), UpdateTransactionStatusRequest{Status: "failed"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateTransactionStatusStaleVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)

	stale := 7
	_, err := f.service.UpdateTransactionStatus(ctx, created.ID, UpdateTransactionStatusRequest{Status: "cancelled", Version: &stale})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	current := 1
	updated, err := f.service.UpdateTransactionStatus(ctx, created.ID, UpdateTransactionStatusRequest{Status: "cancelled", Version: &current})
	if err != nil || updated.Version != 2 {
		t.Fatalf("matching version should apply: %+v %v", updated, err)
	}
}

func TestUpdateTransactionStatusRetriesAfterConcurrentWrite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)
	txID := uuid.MustParse(created.ID)

	var once sync.Once
	f.transactions.beforeUpdate = func() {
		once.Do(func() {
			f.transactions.mu.Lock()
			tx := f.transactions.items[txID]
			tx.Status = domain.TransactionStatusFailed
			tx.Version++
			f.transactions.items[txID] = tx
			f.transactions.mu.Unlock()
		})
	}

	updated, err := f.service.UpdateTransactionStatus(ctx, created.ID, UpdateTransactionStatusRequest{Status: "completed"})
	if err != nil {
		t.Fatalf("update should retry past the concurrent write: %v", err)
	}
	if updated.Status != "completed" || updated.Version != 3 {
		t.Fatalf("unexpected result after retry: %+v", updated)
	}
	if got := len(f.outbox.ofType(domain.EventTransactionStatusChanged)); got != 1 {
		t.Fatalf("only the committed attempt may emit events, got %d", got)
	}
}

func TestUpdateTransactionStatusWithoutOwnerEmail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)

	owner := f.owner
	owner.Email = ""
	_ = f.users.Upsert(ctx, owner)

	if _, err := f.service.UpdateTransactionStatus(ctx, created.ID, UpdateTransactionStatusRequest{Status: "failed"}); err != nil {
		t.Fatalf("status update should not depend on the owner email: %v", err)
	}
	if len(f.outbox.ofType(domain.EventNotificationEmailRequested)) != 0 {
		t.Fatalf("no email request expected without an address")
	}
}

func TestAddAndListDisputes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)

	if _, err := f.service.AddDispute(ctx, f.ownerActor(), created.ID, AddDisputeRequest{Reason: "  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty reason, got %v", err)
	}
	if _, err := f.service.AddDispute(ctx, f.ownerActor(), uuid.NewString(), AddDisputeRequest{Reason: "never arrived"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown transaction, got %v", err)
	}
	if len(f.disputes.items) != 0 {
		t.Fatalf("failed disputes must not persist")
	}

	dispute, err := f.service.AddDispute(ctx, f.ownerActor(), created.ID, AddDisputeRequest{Reason: "item never arrived"})
	if err != nil {
		t.Fatalf("add dispute failed: %v", err)
	}
	if dispute.Status != "pending" || dispute.TransactionID != created.ID || dispute.RaisedBy != f.owner.UserID.String() {
		t.Fatalf("unexpected dispute: %+v", dispute)
	}
	if len(f.outbox.ofType(domain.EventDisputeCreated)) != 1 {
		t.Fatalf("expected dispute.created event")
	}

	items, err := f.service.ListTransactionDisputes(ctx, f.adminActor(), created.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("list disputes: %+v %v", items, err)
	}
	if _, err := f.service.ListTransactionDisputes(ctx, domain.Actor{UserID: uuid.New()}, created.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
	got, err := f.service.GetDispute(ctx, dispute.ID)
	if err != nil || got.Reason != "item never arrived" {
		t.Fatalf("get dispute: %+v %v", got, err)
	}
}

func TestResolveDispute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)
	dispute, err := f.service.AddDispute(ctx, f.ownerActor(), created.ID, AddDisputeRequest{Reason: "damaged"})
	if err != nil {
		t.Fatalf("add dispute: %v", err)
	}

	if _, err := f.service.ResolveDispute(ctx, dispute.ID, ResolveDisputeRequest{Status: "pending"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := f.service.ResolveDispute(ctx, uuid.NewString(), ResolveDisputeRequest{Status: "resolved"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	resolved, err := f.service.ResolveDispute(ctx, dispute.ID, ResolveDisputeRequest{Status: "resolved"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != "resolved" || resolved.Resolution != "No resolution provided" || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved dispute: %+v", resolved)
	}
	if len(f.outbox.ofType(domain.EventNotificationEmailRequested)) != 0 {
		t.Fatalf("plain resolve must not notify")
	}

	if _, err := f.service.ResolveDispute(ctx, dispute.ID, ResolveDisputeRequest{Status: "denied"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict when settling twice, got %v", err)
	}
}

func TestApproveAndDenyDispute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)

	first, _ := f.service.AddDispute(ctx, f.ownerActor(), created.ID, AddDisputeRequest{Reason: "late"})
	second, _ := f.service.AddDispute(ctx, f.ownerActor(), created.ID, AddDisputeRequest{Reason: "wrong item"})

	approved, err := f.service.ApproveDispute(ctx, first.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != "resolved" || approved.Resolution != "Approved by admin" {
		t.Fatalf("unexpected approved dispute: %+v", approved)
	}
	denied, err := f.service.DenyDispute(ctx, second.ID)
	if err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if denied.Status != "denied" || denied.Resolution != "Denied by admin" {
		t.Fatalf("unexpected denied dispute: %+v", denied)
	}

	requests := f.outbox.ofType(domain.EventNotificationEmailRequested)
	if len(requests) != 2 {
		t.Fatalf("expected two dispute emails queued, got %d", len(requests))
	}
	for _, r := range requests {
		if err := f.service.DeliverQueuedEmail(ctx, r.Payload); err != nil {
			t.Fatalf("deliver dispute email: %v", err)
		}
	}
	var subjects []string
	for _, m := range f.mailer.sentTo(f.owner.Email) {
		subjects = append(subjects, m.Subject)
	}
	joined := strings.Join(subjects, "|")
	if !strings.Contains(joined, "Your Dispute has been Resolved") || !strings.Contains(joined, "Your Dispute has been Denied") {
		t.Fatalf("unexpected subjects: %v", subjects)
	}
}

func TestApproveDisputeWithoutOwnerEmail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.createTransaction(t)
	dispute, _ := f.service.AddDispute(ctx, f.ownerActor(), created.ID, AddDisputeRequest{Reason: "late"})

	owner := f.owner
	owner.Email = ""
	_ = f.users.Upsert(ctx, owner)

	_, err := f.service.ApproveDispute(ctx, dispute.ID)
	if !errors.Is(err, domain.ErrInvalidInput) || !strings.Contains(err.Error(), "email information is missing") {
		t.Fatalf("expected missing email validation error, got %v", err)
	}
	stored, _ := f.disputes.GetByID(ctx, uuid.MustParse(dispute.ID))
	if stored.Status != domain.DisputeStatusPending || stored.Resolution != "" {
		t.Fatalf("dispute must stay pending: %+v", stored)
	}
	if len(f.outbox.ofType(domain.EventDisputeResolved)) != 0 {
		t.Fatalf("no resolution event expected")
	}
}

func TestDeliverQueuedEmailFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	evt, err := f.service.emailRequestEvent(f.owner.Email, "subject", "body", "key", f.service.nowFn())
	if err != nil {
		t.Fatalf("build email request: %v", err)
	}
	f.mailer.fail[f.owner.Email] = -1
	if err := f.service.DeliverQueuedEmail(context.Background(), evt.Payload); !errors.Is(err, domain.ErrNotification) {
		t.Fatalf("expected notification error, got %v", err)
	}
	if got := f.mailer.callsTo(f.owner.Email); got != 1 {
		t.Fatalf("relay should leave retries to the outbox, got %d attempts", got)
	}
	if err := f.service.DeliverQueuedEmail(context.Background(), []byte(`{"event_type":"transaction.created"}`)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for foreign event, got %v", err)
	}
}

func TestHandleDirectoryEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.createTransaction(t)
	if !f.adminCache.set {
		t.Fatalf("admin cache should be warm after create")
	}

	newAdmin := uuid.New()
	payload := []byte(`{"event_id":"evt-1","event_type":"user.registered","occurred_at":"2026-01-02T03:04:05Z","data":{"user_id":"` + newAdmin.String() + `","email":"ops@example.com","role":"ADMIN"}}`)
	if err := f.service.HandleDirectoryEvent(ctx, "user.registered", payload); err != nil {
		t.Fatalf("handle user event: %v", err)
	}
	u, err := f.users.GetByID(ctx, newAdmin)
	if err != nil || !u.IsAdmin() || u.Email != "ops@example.com" {
		t.Fatalf("user not projected: %+v %v", u, err)
	}
	if f.adminCache.set {
		t.Fatalf("admin cache should be invalidated by user events")
	}

	if err := f.users.Delete(ctx, newAdmin); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.service.HandleDirectoryEvent(ctx, "user.registered", payload); err != nil {
		t.Fatalf("duplicate delivery should be ignored: %v", err)
	}
	if _, err := f.users.GetByID(ctx, newAdmin); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("duplicate event must not be applied twice")
	}

	productID := uuid.New()
	productPayload := []byte(`{"event_id":"evt-2","event_type":"product.upserted","data":{"product_id":"` + productID.String() + `","title":"Road Bike"}}`)
	if err := f.service.HandleDirectoryEvent(ctx, "product.upserted", productPayload); err != nil {
		t.Fatalf("handle product event: %v", err)
	}
	if p, err := f.products.GetByID(ctx, productID); err != nil || p.Title != "Road Bike" {
		t.Fatalf("product not projected: %+v %v", p, err)
	}

	if err := f.service.HandleDirectoryEvent(ctx, "billing.invoice", []byte(`{"event_type":"billing.invoice"}`)); err != nil {
		t.Fatalf("unknown events are ignored: %v", err)
	}
	if err := f.service.HandleDirectoryEvent(ctx, "user.updated", []byte(`{`)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid payload error, got %v", err)
	}
}

var _ ports.OutboxRepository = (*memOutbox)(nil)
