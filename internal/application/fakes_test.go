package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/adapters/security"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

type fixture struct {
	service      *Service
	transactions *memTransactions
	disputes     *memDisputes
	users        *memUsers
	products     *memProducts
	outbox       *memOutbox
	mailer       *fakeMailer
	broadcaster  *fakeBroadcaster
	adminCache   *memAdminCache
	idempotency  *memIdempotency
	cipher       *security.AESCBCCipher

	owner   domain.User
	admin   domain.User
	product domain.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keys, err := security.NewKeyring("test", map[string]string{"test": "hex:" + strings.Repeat("0f", 32)})
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	f := &fixture{
		outbox:      &memOutbox{},
		users:       &memUsers{items: map[uuid.UUID]domain.User{}},
		products:    &memProducts{items: map[uuid.UUID]domain.Product{}},
		mailer:      &fakeMailer{fail: map[string]int{}},
		broadcaster: &fakeBroadcaster{},
		adminCache:  &memAdminCache{},
		idempotency: &memIdempotency{items: map[string]ports.IdempotencyRecord{}},
		cipher:      security.NewAESCBCCipher(keys),
	}
	f.transactions = &memTransactions{items: map[uuid.UUID]domain.Transaction{}, outbox: f.outbox, users: f.users, products: f.products}
	f.disputes = &memDisputes{items: map[uuid.UUID]domain.Dispute{}, outbox: f.outbox}

	f.owner = domain.User{UserID: uuid.New(), Email: "owner@example.com", DisplayName: "Owner", Role: domain.RoleUser}
	f.admin = domain.User{UserID: uuid.New(), Email: "admin@example.com", DisplayName: "Admin", Role: domain.RoleAdmin}
	f.product = domain.Product{ProductID: uuid.New(), OwnerID: f.owner.UserID, Title: "Vintage Camera"}
	_ = f.users.Upsert(context.Background(), f.owner)
	_ = f.users.Upsert(context.Background(), f.admin)
	_ = f.products.Upsert(context.Background(), f.product)

	dispatcher := NewDispatcher(f.mailer, f.broadcaster, DispatcherConfig{
		DeliveryTimeout: time.Second,
		Retry:           RetryPolicy{MaxAttempts: 2},
		ChannelPrefix:   "test",
	})
	dispatcher.sleep = func(context.Context, time.Duration) error { return nil }

	f.service = NewService(Dependencies{
		Config:       Config{ServiceName: "barter-exchange-test"},
		Transactions: f.transactions,
		Disputes:     f.disputes,
		Users:        f.users,
		Products:     f.products,
		Outbox:       f.outbox,
		Cipher:       f.cipher,
		Dispatcher:   dispatcher,
		AdminCache:   f.adminCache,
		Idempotency:  f.idempotency,
		EventDedup:   &memDedup{seen: map[string]bool{}},
	})
	return f
}

func (f *fixture) ownerActor() domain.Actor {
	return domain.Actor{UserID: f.owner.UserID, Email: f.owner.Email, Role: domain.RoleUser}
}

func (f *fixture) adminActor() domain.Actor {
	return domain.Actor{UserID: f.admin.UserID, Email: f.admin.Email, Role: domain.RoleAdmin}
}

func (f *fixture) createTransaction(t *testing.T) TransactionResponse {
	t.Helper()
	res, err := f.service.CreateTransaction(context.Background(), f.ownerActor(), CreateTransactionRequest{
		UserID:          f.owner.UserID.String(),
		ProductID:       f.product.ProductID.String(),
		TransactionType: domain.TransactionTypeBarter,
		Amount:          "100",
		Description:     "test item",
	}, "")
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return res.Transaction
}

type memOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
	// honorCancel rejects writes on a cancelled context the way a database driver does.
	honorCancel bool
}

func (m *memOutbox) Enqueue(ctx context.Context, events ...ports.OutboxEvent) error {
	if m.honorCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (m *memOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (m *memOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (m *memOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (m *memOutbox) ofType(eventType string) []ports.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ports.OutboxEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memTransactions struct {
	mu       sync.Mutex
	items    map[uuid.UUID]domain.Transaction
	outbox   *memOutbox
	users    *memUsers
	products *memProducts
	// beforeUpdate runs inside UpdateStatusWithOutbox before the version check.
	beforeUpdate func()
}

func (m *memTransactions) CreateWithOutbox(ctx context.Context, tx domain.Transaction, events []ports.OutboxEvent) (domain.Transaction, error) {
	m.mu.Lock()
	m.items[tx.TransactionID] = tx
	m.mu.Unlock()
	return tx, m.outbox.Enqueue(ctx, events...)
}

func (m *memTransactions) GetByID(_ context.Context, id uuid.UUID) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.items[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return tx, nil
}

func (m *memTransactions) List(ctx context.Context, filter domain.TransactionFilter) ([]ports.TransactionView, error) {
	m.mu.Lock()
	var out []ports.TransactionView
	for _, tx := range m.items {
		if filter.TransactionType != "" && tx.TransactionType != filter.TransactionType {
			continue
		}
		if filter.UserID != nil && tx.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		out = append(out, ports.TransactionView{Transaction: tx})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Transaction.CreatedAt.After(out[j].Transaction.CreatedAt)
	})
	for i := range out {
		if u, err := m.users.GetByID(ctx, out[i].Transaction.UserID); err == nil {
			out[i].User = &u
		}
		if p, err := m.products.GetByID(ctx, out[i].Transaction.ProductID); err == nil {
			out[i].Product = &p
		}
	}
	return out, nil
}

func (m *memTransactions) UpdateStatusWithOutbox(ctx context.Context, change ports.StatusChange, events []ports.OutboxEvent) (domain.Transaction, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	tx, ok := m.items[change.TransactionID]
	if !ok {
		m.mu.Unlock()
		return domain.Transaction{}, domain.ErrNotFound
	}
	if tx.Version != change.ExpectedVersion {
		m.mu.Unlock()
		return domain.Transaction{}, domain.ErrConflict
	}
	tx.Status = change.Status
	tx.Version++
	tx.UpdatedAt = change.UpdatedAt
	m.items[tx.TransactionID] = tx
	m.mu.Unlock()
	return tx, m.outbox.Enqueue(ctx, events...)
}

type memDisputes struct {
	mu     sync.Mutex
	items  map[uuid.UUID]domain.Dispute
	outbox *memOutbox
}

func (m *memDisputes) CreateWithOutbox(ctx context.Context, d domain.Dispute, events []ports.OutboxEvent) (domain.Dispute, error) {
	m.mu.Lock()
	m.items[d.DisputeID] = d
	m.mu.Unlock()
	return d, m.outbox.Enqueue(ctx, events...)
}

func (m *memDisputes) GetByID(_ context.Context, id uuid.UUID) (domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return d, nil
}

func (m *memDisputes) ListByTransaction(_ context.Context, txID uuid.UUID) ([]domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Dispute
	for _, d := range m.items {
		if d.TransactionID == txID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDisputes) SettleWithOutbox(ctx context.Context, settled domain.Dispute, expectedVersion int, events []ports.OutboxEvent) (domain.Dispute, error) {
	m.mu.Lock()
	current, ok := m.items[settled.DisputeID]
	if !ok {
		m.mu.Unlock()
		return domain.Dispute{}, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		m.mu.Unlock()
		return domain.Dispute{}, domain.ErrConflict
	}
	settled.Version = current.Version + 1
	m.items[settled.DisputeID] = settled
	m.mu.Unlock()
	return settled, m.outbox.Enqueue(ctx, events...)
}

type memUsers struct {
	mu        sync.Mutex
	items     map[uuid.UUID]domain.User
	listCalls int
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) ListAdmins(context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []domain.User
	for _, u := range m.items {
		if u.IsAdmin() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) Upsert(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[u.UserID] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

type memProducts struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.Product
}

func (m *memProducts) GetByID(_ context.Context, id uuid.UUID) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memProducts) Upsert(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.ProductID] = p
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []ports.EmailMessage
	// fail maps an address to the number of attempts that should fail; -1 fails forever.
	fail  map[string]int
	calls map[string]int
	block bool
	// onSend runs before every attempt.
	onSend func()
}

func (m *fakeMailer) Send(ctx context.Context, msg ports.EmailMessage) error {
	if m.onSend != nil {
		m.onSend()
	}
	m.mu.Lock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[msg.To]++
	remaining, failing := m.fail[msg.To]
	if failing && remaining != 0 {
		if remaining > 0 {
			m.fail[msg.To] = remaining - 1
		}
		m.mu.Unlock()
		return errors.New("smtp unavailable")
	}
	block := m.block
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *fakeMailer) sentTo(addr string) []ports.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ports.EmailMessage
	for _, msg := range m.sent {
		if msg.To == addr {
			out = append(out, msg)
		}
	}
	return out
}

func (m *fakeMailer) callsTo(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[addr]
}

type published struct {
	channel string
	message []byte
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (b *fakeBroadcaster) Publish(_ context.Context, channel string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, published{channel: channel, message: message})
	return nil
}

func (b *fakeBroadcaster) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.messages))
	for _, m := range b.messages {
		out = append(out, m.channel)
	}
	return out
}

type memAdminCache struct {
	mu     sync.Mutex
	admins []domain.User
	set    bool
}

func (c *memAdminCache) GetAdmins(context.Context) ([]domain.User, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admins, c.set, nil
}

func (c *memAdminCache) SetAdmins(_ context.Context, admins []domain.User, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admins, c.set = admins, true
	return nil
}

func (c *memAdminCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admins, c.set = nil, false
	return nil
}

type memIdempotency struct {
	mu    sync.Mutex
	items map[string]ports.IdempotencyRecord
}

func (m *memIdempotency) Reserve(_ context.Context, key, requestHash string, _ time.Duration) (*ports.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.items[key]; ok {
		return &rec, nil
	}
	m.items[key] = ports.IdempotencyRecord{RequestHash: requestHash}
	return nil, nil
}

func (m *memIdempotency) Complete(_ context.Context, key string, record ports.IdempotencyRecord, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = record
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memDedup) IsDuplicate(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[id], nil
}

func (m *memDedup) MarkProcessed(_ context.Context, id, _ string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = true
	return nil
}
