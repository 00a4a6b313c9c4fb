package postgres

import (
	"github.com/viralforge/barter-exchange/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Transactions ports.TransactionRepository
	Disputes     ports.DisputeRepository
	Users        ports.UserRepository
	Products     ports.ProductRepository
	Outbox       ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Transactions: &transactionRepository{db: db},
		Disputes:     &disputeRepository{db: db},
		Users:        &userRepository{db: db},
		Products:     &productRepository{db: db},
		Outbox:       &outboxRepository{db: db},
	}
}
