package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

// OutboxWorker leases unpublished outbox rows and hands them to the publisher.
// Rows that keep failing are dead-lettered after maxRetries attempts.
type OutboxWorker struct {
	logger      *slog.Logger
	outbox      ports.OutboxRepository
	publisher   ports.EventPublisher
	interval    time.Duration
	batchSize   int
	claimTTL    time.Duration
	maxRetries  int
	leaseMargin time.Duration
	now         func() time.Time
}

type OutboxWorkerConfig struct {
	Interval   time.Duration
	BatchSize  int
	ClaimTTL   time.Duration
	MaxRetries int
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, cfg OutboxWorkerConfig) *OutboxWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxWorker{
		logger:      logger,
		outbox:      outbox,
		publisher:   publisher,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		claimTTL:    cfg.ClaimTTL,
		maxRetries:  cfg.MaxRetries,
		leaseMargin: cfg.ClaimTTL / 5,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.processOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type batchStats struct {
	claimed      int
	published    int
	failed       int
	deadLettered int
	skipped      int
}

func (w *OutboxWorker) processOnce(ctx context.Context) (batchStats, error) {
	var stats batchStats
	claimToken := uuid.NewString()
	claimUntil := w.now().Add(w.claimTTL)
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, claimUntil)
	if err != nil {
		return stats, err
	}
	stats.claimed = len(records)

	// Publishing stops leaseMargin before claimUntil so another worker never re-claims a row in flight.
	workUntil := claimUntil.Add(-w.leaseMargin)
	for i, rec := range records {
		if !w.now().Before(workUntil) {
			stats.skipped = len(records) - i
			w.logger.WarnContext(ctx, "outbox lease nearly expired; batch cut short",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"skipped_count", stats.skipped,
			)
			break
		}
		if err := w.processRecord(ctx, rec, claimToken, workUntil, &stats); errors.Is(err, domain.ErrClaimLost) {
			stats.skipped = len(records) - i - 1
			break
		}
	}
	if stats.claimed > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.outbox_worker",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", stats.claimed,
			"published_count", stats.published,
			"failed_count", stats.failed,
			"dead_lettered_count", stats.deadLettered,
			"skipped_count", stats.skipped,
		)
	}
	return stats, nil
}

// processRecord publishes one leased row and returns the bookkeeping error, if any.
func (w *OutboxWorker) processRecord(ctx context.Context, rec ports.OutboxRecord, claimToken string, workUntil time.Time, stats *batchStats) error {
	now := w.now()
	if rec.RetryCount >= w.maxRetries {
		stats.deadLettered++
		return w.mark(ctx, "mark_dead_lettered", rec, w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now))
	}

	publishCtx, cancel := context.WithDeadline(ctx, workUntil)
	err := w.publisher.Publish(publishCtx, rec.EventType, rec.Payload, rec.PartitionKey)
	cancel()
	now = w.now()
	if err == nil {
		stats.published++
		return w.mark(ctx, "mark_published", rec, w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now))
	}

	stats.failed++
	retriesAfterFailure := rec.RetryCount + 1
	if retriesAfterFailure >= w.maxRetries {
		stats.deadLettered++
		w.logger.ErrorContext(ctx, "outbox message moved to dlq",
			"module", "events.outbox_worker",
			"layer", "adapter",
			"operation", "publish_event",
			"outcome", "failure",
			"outbox_id", rec.OutboxID,
			"event_type", rec.EventType,
			"retry_count", retriesAfterFailure,
			"error", err,
		)
		return w.mark(ctx, "mark_dead_lettered", rec, w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now))
	}

	w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"retry_count", retriesAfterFailure,
		"error", err,
	)
	return w.mark(ctx, "mark_failed", rec, w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now))
}

// mark logs bookkeeping failures; the lease expires and the row is retried.
func (w *OutboxWorker) mark(ctx context.Context, operation string, rec ports.OutboxRecord, err error) error {
	if err == nil {
		return nil
	}
	w.logger.WarnContext(ctx, "outbox bookkeeping failed",
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", operation,
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"error", err,
	)
	return err
}
