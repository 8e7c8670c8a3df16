package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/allumi/attribution-service/internal/application"
)

// ReconcileWorker periodically repairs conversions whose revenue rows only
// partially persisted. Repairs replay the stored resolution decision and
// never re-run scoring.
type ReconcileWorker struct {
	logger    *slog.Logger
	service   *application.Service
	interval  time.Duration
	batchSize int
}

func NewReconcileWorker(
	logger *slog.Logger,
	service *application.Service,
	interval time.Duration,
	batchSize int,
) *ReconcileWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ReconcileWorker{
		logger:    logger,
		service:   service,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		repaired, err := w.service.ReconcileIncomplete(ctx, w.batchSize)
		if err != nil {
			w.logger.ErrorContext(ctx, "reconciliation iteration failed",
				"module", "events.reconcile_worker",
				"layer", "adapter",
				"operation", "reconcile_incomplete",
				"outcome", "failure",
				"error", err,
			)
		} else if repaired > 0 {
			w.logger.InfoContext(ctx, "reconciliation batch processed",
				"module", "events.reconcile_worker",
				"layer", "adapter",
				"operation", "reconcile_incomplete",
				"outcome", "success",
				"repaired_count", repaired,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
