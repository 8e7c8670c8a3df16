package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/ports"
)

// Per-event publish deadline. A hung broker connection must not stall the
// whole claimed batch past its claim TTL.
const publishTimeout = 5 * time.Second

type deliveryOutcome int

const (
	deliveryPublished deliveryOutcome = iota
	deliveryRetried
	deliveryDeadLettered
)

// OutboxWorker drains the attribution outbox: touchpoint, conversion and
// reconciliation events written transactionally with their rows are claimed
// in batches and pushed to the broker, with retry bookkeeping per record.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

// NewOutboxWorker constructs the outbox publisher loop with sane defaults.
func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run executes the periodic outbox publish loop until context cancellation.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
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

func (w *OutboxWorker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	published := 0
	retried := 0
	deadLettered := 0
	for _, rec := range records {
		switch w.deliver(ctx, claimToken, rec, now) {
		case deliveryPublished:
			published++
		case deliveryRetried:
			retried++
		case deliveryDeadLettered:
			deadLettered++
		}
	}

	w.logger.InfoContext(ctx, "outbox batch processed",
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", "outbox_process_once",
		"outcome", "success",
		"batch_size", len(records),
		"published_count", published,
		"retried_count", retried,
		"dead_lettered_count", deadLettered,
	)
	return nil
}

// deliver publishes a single claimed record and applies the matching outbox
// state transition. Records that exhausted their retries before this pass go
// straight to the dead-letter state without another broker attempt.
func (w *OutboxWorker) deliver(ctx context.Context, claimToken string, rec ports.OutboxRecord, now time.Time) deliveryOutcome {
	if rec.RetryCount >= w.maxRetries {
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now)
		return deliveryDeadLettered
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err := w.publisher.Publish(publishCtx, rec.EventType, rec.Payload)
	cancel()
	if err == nil {
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
		return deliveryPublished
	}

	retriesAfterFailure := rec.RetryCount + 1
	fields := []any{
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"partition_key", rec.PartitionKey,
		"retry_count", retriesAfterFailure,
		"error", err,
	}
	if retriesAfterFailure >= w.maxRetries {
		w.logger.ErrorContext(ctx, "outbox message moved to dlq", fields...)
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
		return deliveryDeadLettered
	}
	w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled", fields...)
	_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
	return deliveryRetried
}
