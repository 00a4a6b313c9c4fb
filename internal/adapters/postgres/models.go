package postgres

import (
	"time"

	"github.com/google/uuid"
)

type userModel struct {
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Email       string    `gorm:"column:email"`
	DisplayName string    `gorm:"column:display_name"`
	Role        string    `gorm:"column:role"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "exchange_users" }

type productModel struct {
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;primaryKey"`
	OwnerID   *uuid.UUID `gorm:"column:owner_id;type:uuid"`
	Title     string     `gorm:"column:title"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (productModel) TableName() string { return "exchange_products" }

type transactionModel struct {
	TransactionID         uuid.UUID `gorm:"column:transaction_id;type:uuid;primaryKey"`
	UserID                uuid.UUID `gorm:"column:user_id;type:uuid"`
	ProductID             uuid.UUID `gorm:"column:product_id;type:uuid"`
	TransactionType       string    `gorm:"column:transaction_type"`
	AmountCiphertext      string    `gorm:"column:amount_ciphertext"`
	AmountIV              string    `gorm:"column:amount_iv"`
	AmountKeyID           string    `gorm:"column:amount_key_id"`
	DescriptionCiphertext string    `gorm:"column:description_ciphertext"`
	DescriptionIV         string    `gorm:"column:description_iv"`
	DescriptionKeyID      string    `gorm:"column:description_key_id"`
	Status                string    `gorm:"column:status"`
	Version               int       `gorm:"column:version"`
	CreatedAt             time.Time `gorm:"column:created_at"`
	UpdatedAt             time.Time `gorm:"column:updated_at"`

	User    *userModel    `gorm:"foreignKey:UserID;references:UserID"`
	Product *productModel `gorm:"foreignKey:ProductID;references:ProductID"`
}

func (transactionModel) TableName() string { return "exchange_transactions" }

type disputeModel struct {
	DisputeID     uuid.UUID  `gorm:"column:dispute_id;type:uuid;primaryKey"`
	TransactionID uuid.UUID  `gorm:"column:transaction_id;type:uuid"`
	RaisedBy      *uuid.UUID `gorm:"column:raised_by;type:uuid"`
	Reason        string     `gorm:"column:reason"`
	Status        string     `gorm:"column:status"`
	Resolution    string     `gorm:"column:resolution"`
	Version       int        `gorm:"column:version"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
	ResolvedAt    *time.Time `gorm:"column:resolved_at"`
}

func (disputeModel) TableName() string { return "exchange_disputes" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "exchange_outbox" }
