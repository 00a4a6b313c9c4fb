package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
	"gorm.io/gorm"
)

type disputeRepository struct {
	db *gorm.DB
}

func (r *disputeRepository) CreateWithOutbox(ctx context.Context, d domain.Dispute, events []ports.OutboxEvent) (domain.Dispute, error) {
	rec := toDisputeModel(d)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			if isForeignKeyViolation(err) {
				return domain.ErrNotFound
			}
			return err
		}
		return insertOutbox(tx, events)
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	return toDomainDispute(rec), nil
}

func (r *disputeRepository) GetByID(ctx context.Context, disputeID uuid.UUID) (domain.Dispute, error) {
	var rec disputeModel
	if err := r.db.WithContext(ctx).Where("dispute_id = ?", disputeID).Take(&rec).Error; err != nil {
		return domain.Dispute{}, notFound(err)
	}
	return toDomainDispute(rec), nil
}

func (r *disputeRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.Dispute, error) {
	var rows []disputeModel
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Dispute, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainDispute(row))
	}
	return out, nil
}

func (r *disputeRepository) SettleWithOutbox(ctx context.Context, settled domain.Dispute, expectedVersion int, events []ports.OutboxEvent) (domain.Dispute, error) {
	var result domain.Dispute
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&disputeModel{}).
			Where("dispute_id = ?", settled.DisputeID).
			Where("version = ?", expectedVersion).
			Where("status = ?", string(domain.DisputeStatusPending)).
			Updates(map[string]any{
				"status":      string(settled.Status),
				"resolution":  settled.Resolution,
				"version":     gorm.Expr("version + 1"),
				"updated_at":  settled.UpdatedAt,
				"resolved_at": settled.ResolvedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&disputeModel{}).Where("dispute_id = ?", settled.DisputeID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}

		var rec disputeModel
		if err := tx.Where("dispute_id = ?", settled.DisputeID).Take(&rec).Error; err != nil {
			return notFound(err)
		}
		if err := insertOutbox(tx, events); err != nil {
			return err
		}
		result = toDomainDispute(rec)
		return nil
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	return result, nil
}
