package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/barter-exchange/internal/adapters/security"
	"github.com/viralforge/barter-exchange/internal/application"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

type store struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]domain.Transaction
	disputes     map[uuid.UUID]domain.Dispute
	users        map[uuid.UUID]domain.User
	products     map[uuid.UUID]domain.Product
	outbox       []ports.OutboxEvent
}

func newStore() *store {
	return &store{
		transactions: map[uuid.UUID]domain.Transaction{},
		disputes:     map[uuid.UUID]domain.Dispute{},
		users:        map[uuid.UUID]domain.User{},
		products:     map[uuid.UUID]domain.Product{},
	}
}

type txRepo struct{ s *store }

func (r txRepo) CreateWithOutbox(_ context.Context, tx domain.Transaction, events []ports.OutboxEvent) (domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.transactions[tx.TransactionID] = tx
	r.s.outbox = append(r.s.outbox, events...)
	return tx, nil
}

func (r txRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return tx, nil
}

func (r txRepo) List(_ context.Context, f domain.TransactionFilter) ([]ports.TransactionView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []ports.TransactionView
	for _, tx := range r.s.transactions {
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if f.UserID != nil && tx.UserID != *f.UserID {
			continue
		}
		if f.TransactionType != "" && tx.TransactionType != f.TransactionType {
			continue
		}
		out = append(out, ports.TransactionView{Transaction: tx})
	}
	return out, nil
}

func (r txRepo) UpdateStatusWithOutbox(_ context.Context, c ports.StatusChange, events []ports.OutboxEvent) (domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[c.TransactionID]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if tx.Version != c.ExpectedVersion {
		return domain.Transaction{}, domain.ErrConflict
	}
	tx.Status, tx.Version, tx.UpdatedAt = c.Status, tx.Version+1, c.UpdatedAt
	r.s.transactions[tx.TransactionID] = tx
	r.s.outbox = append(r.s.outbox, events...)
	return tx, nil
}

type disputeRepo struct{ s *store }

func (r disputeRepo) CreateWithOutbox(_ context.Context, d domain.Dispute, events []ports.OutboxEvent) (domain.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.disputes[d.DisputeID] = d
	r.s.outbox = append(r.s.outbox, events...)
	return d, nil
}

func (r disputeRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.disputes[id]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return d, nil
}

func (r disputeRepo) ListByTransaction(_ context.Context, txID uuid.UUID) ([]domain.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Dispute
	for _, d := range r.s.disputes {
		if d.TransactionID == txID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r disputeRepo) SettleWithOutbox(_ context.Context, settled domain.Dispute, expected int, events []ports.OutboxEvent) (domain.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.disputes[settled.DisputeID]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	if current.Version != expected {
		return domain.Dispute{}, domain.ErrConflict
	}
	settled.Version = current.Version + 1
	r.s.disputes[settled.DisputeID] = settled
	r.s.outbox = append(r.s.outbox, events...)
	return settled, nil
}

type userRepo struct{ s *store }

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (r userRepo) ListAdmins(context.Context) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, u := range r.s.users {
		if u.IsAdmin() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r userRepo) Upsert(_ context.Context, u domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[u.UserID] = u
	return nil
}

func (r userRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.users, id)
	return nil
}

type productRepo struct{ s *store }

func (r productRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (r productRepo) Upsert(_ context.Context, p domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.products[p.ProductID] = p
	return nil
}

type outboxRepo struct{ s *store }

func (r outboxRepo) Enqueue(_ context.Context, events ...ports.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outbox = append(r.s.outbox, events...)
	return nil
}

func (outboxRepo) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (outboxRepo) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (outboxRepo) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (outboxRepo) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, ports.EmailMessage) error { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, string, []byte) error { return nil }

type testEnv struct {
	router   http.Handler
	verifier *security.JWTVerifier
	owner    domain.User
	admin    domain.User
	product  domain.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := newStore()
	keys, err := security.NewKeyring("k1", map[string]string{"k1": "hex:" + strings.Repeat("ab", 32)})
	require.NoError(t, err)
	verifier, err := security.NewJWTVerifier("test-secret", "")
	require.NoError(t, err)

	env := &testEnv{
		verifier: verifier,
		owner:    domain.User{UserID: uuid.New(), Email: "owner@example.com", Role: domain.RoleUser},
		admin:    domain.User{UserID: uuid.New(), Email: "admin@example.com", Role: domain.RoleAdmin},
	}
	env.product = domain.Product{ProductID: uuid.New(), Title: "Desk Lamp"}
	s.users[env.owner.UserID] = env.owner
	s.users[env.admin.UserID] = env.admin
	s.products[env.product.ProductID] = env.product

	svc := application.NewService(application.Dependencies{
		Transactions: txRepo{s},
		Disputes:     disputeRepo{s},
		Users:        userRepo{s},
		Products:     productRepo{s},
		Outbox:       outboxRepo{s},
		Cipher:       security.NewAESCBCCipher(keys),
		Dispatcher:   application.NewDispatcher(nopMailer{}, nopBroadcaster{}, application.DispatcherConfig{}),
	})
	env.router = NewRouter(NewHandler(svc, verifier, nil))
	return env
}

func (e *testEnv) token(t *testing.T, u domain.User) string {
	t.Helper()
	raw, err := e.verifier.Sign(ports.AuthClaims{UserID: u.UserID, Email: u.Email, Role: u.Role}, time.Hour)
	require.NoError(t, err)
	return raw
}
