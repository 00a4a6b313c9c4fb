package application

import (
	"time"

	"github.com/viralforge/barter-exchange/internal/ports"
)

type Config struct {
	ServiceName         string
	AdminCacheTTL       time.Duration
	IdempotencyTTL      time.Duration
	EventDedupTTL       time.Duration
	StatusUpdateRetries int
}

type Service struct {
	cfg          Config
	transactions ports.TransactionRepository
	disputes     ports.DisputeRepository
	users        ports.UserRepository
	products     ports.ProductRepository
	outbox       ports.OutboxRepository
	cipher       ports.FieldCipher
	dispatcher   *Dispatcher
	adminCache   ports.AdminCache
	idempotency  ports.IdempotencyStore
	eventDedup   ports.EventDedupStore
	nowFn        func() time.Time
}

type Dependencies struct {
	Config       Config
	Transactions ports.TransactionRepository
	Disputes     ports.DisputeRepository
	Users        ports.UserRepository
	Products     ports.ProductRepository
	Outbox       ports.OutboxRepository
	Cipher       ports.FieldCipher
	Dispatcher   *Dispatcher
	AdminCache   ports.AdminCache
	Idempotency  ports.IdempotencyStore
	EventDedup   ports.EventDedupStore
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "barter-exchange"
	}
	if cfg.AdminCacheTTL <= 0 {
		cfg.AdminCacheTTL = time.Minute
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	if cfg.StatusUpdateRetries <= 0 {
		cfg.StatusUpdateRetries = 3
	}
	return &Service{
		cfg:          cfg,
		transactions: deps.Transactions,
		disputes:     deps.Disputes,
		users:        deps.Users,
		products:     deps.Products,
		outbox:       deps.Outbox,
		cipher:       deps.Cipher,
		dispatcher:   deps.Dispatcher,
		adminCache:   deps.AdminCache,
		idempotency:  deps.Idempotency,
		eventDedup:   deps.EventDedup,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}
