package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

// RecordConversion ingests a revenue event, resolves its attribution and
// writes the per-model revenue rows. Resolution happens once: the conversion
// row only accepts attribution fields while still pending. Row writes are
// keyed on (conversion, model, touchpoint) so a retry after partial failure
// cannot double-credit.
func (s *Service) RecordConversion(ctx context.Context, req RecordConversionRequest, idempotencyKey string) (RecordConversionResponse, error) {
	if err := validateConversion(req); err != nil {
		return RecordConversionResponse{}, err
	}

	if req.UpstreamEventID != "" && s.dedup != nil {
		dup, err := s.dedup.IsDuplicate(ctx, req.UpstreamEventID)
		if err == nil && dup {
			return RecordConversionResponse{Duplicate: true}, nil
		}
	}

	requestHash := hashJSON(req)
	if raw, ok, err := s.getIdempotent(ctx, idempotencyKey, requestHash); err != nil {
		return RecordConversionResponse{}, err
	} else if ok {
		var out RecordConversionResponse
		if json.Unmarshal(raw, &out) == nil {
			return out, nil
		}
	}
	if err := s.reserveIdempotency(ctx, idempotencyKey, requestHash); err != nil {
		return RecordConversionResponse{}, err
	}

	now := s.nowFn()
	occurredAt := now
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		occurredAt = req.OccurredAt.UTC()
	}

	conv := domain.Conversion{
		ConversionID:     "conv_" + uuid.NewString(),
		AccountID:        strings.TrimSpace(req.AccountID),
		IdentityID:       domain.NormalizeToken(req.IdentityID),
		UserID:           domain.NormalizeToken(req.UserID),
		Email:            domain.NormalizeEmail(req.Signals.Email),
		Kind:             strings.ToLower(strings.TrimSpace(req.Kind)),
		AmountCents:      req.AmountCents,
		Currency:         normalizeCurrency(req.Currency),
		OccurredAt:       occurredAt,
		AttributionState: domain.AttributionStatePending,
	}
	if err := s.conversions.Create(ctx, conv); err != nil {
		return RecordConversionResponse{}, err
	}

	var res RecordConversionResponse
	var err error
	if conv.Kind == domain.ConversionKindRenewal {
		res, err = s.attributeRecurring(ctx, conv)
	} else {
		res, err = s.resolveAndDistribute(ctx, conv, req.Signals)
	}
	if err != nil {
		return RecordConversionResponse{}, err
	}

	if req.UpstreamEventID != "" && s.dedup != nil {
		_ = s.dedup.MarkProcessed(ctx, req.UpstreamEventID, s.cfg.DedupTTL)
	}
	s.completeIdempotencyJSON(ctx, idempotencyKey, 201, res)
	return res, nil
}

// attributeRecurring credits renewal revenue straight to the subscription
// channel. No touchpoint lookup runs for renewals.
func (s *Service) attributeRecurring(ctx context.Context, conv domain.Conversion) (RecordConversionResponse, error) {
	now := s.nowFn()
	row := domain.BuildRecurringRecord(conv, now)
	row.AttributionID = "ra_" + uuid.NewString()
	if err := s.attributions.Append(ctx, row); err != nil {
		_ = s.conversions.SetState(ctx, conv.ConversionID, domain.AttributionStateIncomplete, now)
		return RecordConversionResponse{}, err
	}

	confidence := 100
	if err := s.conversions.ApplyAttribution(ctx, conv.ConversionID, ports.ConversionAttributionUpdate{
		Method:     domain.ModelRecurring,
		Confidence: confidence,
		State:      domain.AttributionStateAttributed,
		ResolvedAt: now,
	}); err != nil {
		return RecordConversionResponse{}, err
	}

	s.enqueueEvent(ctx, "attribution.conversion.attributed", conv.AccountID, map[string]any{
		"conversion_id": conv.ConversionID,
		"method":        domain.ModelRecurring,
		"channel":       domain.RecurringChannel,
		"amount_cents":  conv.AmountCents,
	})
	return RecordConversionResponse{
		ConversionID:     conv.ConversionID,
		AttributionState: domain.AttributionStateAttributed,
		Method:           domain.ModelRecurring,
		Confidence:       &confidence,
	}, nil
}

func (s *Service) resolveAndDistribute(ctx context.Context, conv domain.Conversion, sigIn ConversionSignals) (RecordConversionResponse, error) {
	candidates, err := s.fetchCandidates(ctx, conv.AccountID, conv.IdentityID, conv.Email, conv.OccurredAt)
	if err != nil {
		// Store failure leaves the conversion pending and queryable. Attribution
		// is never defaulted to a guessed value.
		return RecordConversionResponse{}, err
	}

	signals := toDomainSignals(sigIn, conv.OccurredAt)
	if signals.UserID == "" {
		signals.UserID = conv.UserID
	}
	resolution := domain.Resolve(signals, candidates)

	now := s.nowFn()
	if resolution.Touchpoint == nil {
		if err := s.conversions.ApplyAttribution(ctx, conv.ConversionID, ports.ConversionAttributionUpdate{
			Method:     domain.MethodUnattributed,
			Confidence: 0,
			State:      domain.AttributionStateUnattributed,
			ResolvedAt: now,
		}); err != nil {
			return RecordConversionResponse{}, err
		}
		s.enqueueEvent(ctx, "attribution.conversion.unattributed", conv.AccountID, map[string]any{
			"conversion_id": conv.ConversionID,
		})
		zero := 0
		return RecordConversionResponse{
			ConversionID:     conv.ConversionID,
			AttributionState: domain.AttributionStateUnattributed,
			Method:           domain.MethodUnattributed,
			Confidence:       &zero,
		}, nil
	}

	if err := s.conversions.ApplyAttribution(ctx, conv.ConversionID, ports.ConversionAttributionUpdate{
		TouchpointID: resolution.Touchpoint.TouchpointID,
		Method:       resolution.Method,
		Confidence:   resolution.Confidence,
		State:        domain.AttributionStateAttributed,
		ResolvedAt:   now,
	}); err != nil {
		return RecordConversionResponse{}, err
	}

	written, writeErr := s.writeDistribution(ctx, conv, candidates, now)
	state := domain.AttributionStateAttributed
	if writeErr != nil {
		// Siblings that did persist stay; reconciliation re-derives the rest
		// from the stored decision without re-running the scorer.
		state = domain.AttributionStateIncomplete
		_ = s.conversions.SetState(ctx, conv.ConversionID, state, s.nowFn())
	}

	s.enqueueEvent(ctx, "attribution.conversion.attributed", conv.AccountID, map[string]any{
		"conversion_id": conv.ConversionID,
		"method":        resolution.Method,
		"confidence":    resolution.Confidence,
		"touchpoint_id": resolution.Touchpoint.TouchpointID,
		"rows_written":  written,
		"state":         state,
	})

	confidence := resolution.Confidence
	return RecordConversionResponse{
		ConversionID:     conv.ConversionID,
		AttributionState: state,
		Method:           resolution.Method,
		Confidence:       &confidence,
		TouchpointID:     resolution.Touchpoint.TouchpointID,
		MultiTouch:       resolution.MultiTouch,
	}, nil
}

// writeDistribution issues the per-model revenue rows as independent,
// individually retryable inserts. Returns the count written plus the first
// error encountered.
func (s *Service) writeDistribution(ctx context.Context, conv domain.Conversion, journey []domain.Touchpoint, at time.Time) (int, error) {
	rows := domain.BuildDistribution(conv, journey, s.cfg.Models, at)
	written := 0
	var firstErr error
	for _, row := range rows {
		row.AttributionID = "ra_" + uuid.NewString()
		if err := s.attributions.Append(ctx, row); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	return written, firstErr
}

func validateConversion(req RecordConversionRequest) error {
	if strings.TrimSpace(req.AccountID) == "" {
		return domain.ErrInvalidInput
	}
	if req.AmountCents < 0 {
		return domain.ErrInvalidInput
	}
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case domain.ConversionKindSignup, domain.ConversionKindPurchase,
		domain.ConversionKindMembership, domain.ConversionKindRenewal:
		return nil
	default:
		return domain.ErrInvalidInput
	}
}

func normalizeCurrency(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return "USD"
	}
	return c
}
