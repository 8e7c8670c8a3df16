package application

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/domain"
)

// Reconcile re-derives any missing revenue rows for a conversion from its
// already-stored resolution decision. The scorer never re-runs here: inputs
// could have drifted since the original resolution, and the decision on the
// conversion row is the source of truth. Safe to repeat; row writes are
// duplicate-swallowing by key.
func (s *Service) Reconcile(ctx context.Context, conversionID string) (ReconcileResponse, error) {
	conversionID = strings.TrimSpace(conversionID)
	if conversionID == "" {
		return ReconcileResponse{}, domain.ErrInvalidInput
	}
	conv, err := s.conversions.GetByID(ctx, conversionID)
	if err != nil {
		return ReconcileResponse{}, err
	}

	switch conv.AttributionState {
	case domain.AttributionStatePending, domain.AttributionStateUnattributed:
		// Nothing to repair: no stored decision, or an explicit no-touchpoint
		// outcome that writes no revenue rows.
		return ReconcileResponse{ConversionID: conv.ConversionID, State: conv.AttributionState}, nil
	}

	now := s.nowFn()
	written := 0
	if conv.AttributionMethod == domain.ModelRecurring {
		row := domain.BuildRecurringRecord(conv, now)
		row.AttributionID = "ra_" + uuid.NewString()
		if err := s.attributions.Append(ctx, row); err != nil {
			return ReconcileResponse{}, err
		}
		written = 1
	} else {
		// The conversion row keeps the identity and email that fed the original
		// candidate fetch, so repair sees the same journey the resolver saw.
		journey, err := s.fetchCandidates(ctx, conv.AccountID, conv.IdentityID, conv.Email, conv.OccurredAt)
		if err != nil {
			return ReconcileResponse{}, err
		}
		if len(journey) == 0 && conv.AttributedTouchpointID != "" {
			// Both keys can still come back empty if touchpoints were pruned
			// since resolution. Fall back to the decided touchpoint alone so
			// single-touch models still get their rows.
			tp, err := s.touchpoints.GetByID(ctx, conv.AttributedTouchpointID)
			if err != nil {
				return ReconcileResponse{}, err
			}
			journey = []domain.Touchpoint{tp}
		}
		for _, row := range domain.BuildDistribution(conv, journey, s.cfg.Models, now) {
			row.AttributionID = "ra_" + uuid.NewString()
			if err := s.attributions.Append(ctx, row); err != nil {
				return ReconcileResponse{}, err
			}
			written++
		}
	}

	if err := s.conversions.SetState(ctx, conv.ConversionID, domain.AttributionStateAttributed, now); err != nil {
		return ReconcileResponse{}, err
	}
	s.enqueueEvent(ctx, "attribution.reconciliation.completed", conv.AccountID, map[string]any{
		"conversion_id": conv.ConversionID,
		"rows_written":  written,
	})
	return ReconcileResponse{
		ConversionID: conv.ConversionID,
		State:        domain.AttributionStateAttributed,
		RowsWritten:  written,
	}, nil
}

// ReconcileIncomplete repairs a batch of conversions left incomplete by
// partial distribution writes. Called by the worker loop.
func (s *Service) ReconcileIncomplete(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	pending, err := s.conversions.ListByState(ctx, domain.AttributionStateIncomplete, limit)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, conv := range pending {
		if _, err := s.Reconcile(ctx, conv.ConversionID); err != nil {
			// Keep going; the conversion stays incomplete and the next sweep
			// picks it up again.
			slog.Default().WarnContext(ctx, "conversion repair failed",
				"module", "application.reconcile",
				"layer", "application",
				"operation", "reconcile_incomplete",
				"outcome", "failure",
				"conversion_id", conv.ConversionID,
				"error", err,
			)
			continue
		}
		repaired++
	}
	return repaired, nil
}
