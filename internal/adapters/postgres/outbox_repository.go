package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outboxRepository struct {
	db *gorm.DB
}

// Enqueue stores events outside of any aggregate write, e.g. email retries.
func (r *outboxRepository) Enqueue(ctx context.Context, events ...ports.OutboxEvent) error {
	return insertOutbox(r.db.WithContext(ctx), events)
}

// ClaimUnpublished leases up to limit rows to claimToken until claimUntil in a single
// UPDATE ... RETURNING. Rows leased by another relay are skipped rather than waited on, and an
// expired lease makes a row claimable again.
func (r *outboxRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	db := r.db.WithContext(ctx)
	candidates := db.Model(&outboxModel{}).
		Select("outbox_id").
		Where("published_at IS NULL AND dead_lettered_at IS NULL").
		Where("claim_until IS NULL OR claim_until < ?", time.Now().UTC()).
		Order("created_at ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

	var rows []outboxModel
	if err := db.Model(&rows).
		Clauses(clause.Returning{}).
		Where("outbox_id IN (?)", candidates).
		Updates(map[string]any{
			"claim_token": claimToken,
			"claim_until": claimUntil,
		}).Error; err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	result := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, toOutboxRecord(row))
	}
	return result, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return claimResult(r.claimed(ctx, outboxID, claimToken).Updates(map[string]any{
		"published_at": at,
		"claim_token":  nil,
		"claim_until":  nil,
	}))
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return claimResult(r.claimed(ctx, outboxID, claimToken).Updates(map[string]any{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"last_error":    truncateError(errMsg),
		"last_error_at": at,
		"claim_token":   nil,
		"claim_until":   nil,
	}))
}

func (r *outboxRepository) MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return claimResult(r.claimed(ctx, outboxID, claimToken).Updates(map[string]any{
		"retry_count":      gorm.Expr("retry_count + 1"),
		"last_error":       truncateError(errMsg),
		"last_error_at":    at,
		"dead_lettered_at": at,
		"claim_token":      nil,
		"claim_until":      nil,
	}))
}

func (r *outboxRepository) claimed(ctx context.Context, outboxID uuid.UUID, claimToken string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Where("claim_token = ?", claimToken)
}

// claimResult reports ErrClaimLost when the row no longer carries the worker's claim token.
func claimResult(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

const maxLastErrorLength = 1024

func truncateError(msg string) string {
	if len(msg) <= maxLastErrorLength {
		return msg
	}
	cut := maxLastErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
