package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type transactionRepository struct {
	db *gorm.DB
}

func (r *transactionRepository) CreateWithOutbox(ctx context.Context, t domain.Transaction, events []ports.OutboxEvent) (domain.Transaction, error) {
	rec := toTransactionModel(t)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return insertOutbox(tx, events)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return toDomainTransaction(rec), nil
}

func (r *transactionRepository) GetByID(ctx context.Context, transactionID uuid.UUID) (domain.Transaction, error) {
	var rec transactionModel
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Take(&rec).Error; err != nil {
		return domain.Transaction{}, notFound(err)
	}
	return toDomainTransaction(rec), nil
}

func (r *transactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]ports.TransactionView, error) {
	q := r.db.WithContext(ctx).Model(&transactionModel{}).Preload("User").Preload("Product")
	if filter.TransactionType != "" {
		q = q.Where("transaction_type = ?", filter.TransactionType)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var rows []transactionModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.TransactionView, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTransactionView(row))
	}
	return out, nil
}

func (r *transactionRepository) UpdateStatusWithOutbox(ctx context.Context, change ports.StatusChange, events []ports.OutboxEvent) (domain.Transaction, error) {
	var result domain.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&transactionModel{}).
			Where("transaction_id = ?", change.TransactionID).
			Where("version = ?", change.ExpectedVersion).
			Updates(map[string]any{
				"status":     string(change.Status),
				"version":    gorm.Expr("version + 1"),
				"updated_at": change.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&transactionModel{}).Where("transaction_id = ?", change.TransactionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}

		var rec transactionModel
		if err := tx.Where("transaction_id = ?", change.TransactionID).Take(&rec).Error; err != nil {
			return err
		}
		if err := insertOutbox(tx, events); err != nil {
			return err
		}
		result = toDomainTransaction(rec)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, err
	}
	return result, nil
}
