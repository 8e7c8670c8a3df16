package application

import (
	"context"
	"strings"

	"github.com/allumi/attribution-service/internal/domain"
)

// GetConversion returns a conversion together with whatever revenue rows
// exist. A pending or unattributed conversion comes back with its explicit
// state and no fabricated confidence.
func (s *Service) GetConversion(ctx context.Context, conversionID string) (ConversionView, error) {
	conversionID = strings.TrimSpace(conversionID)
	if conversionID == "" {
		return ConversionView{}, domain.ErrInvalidInput
	}
	conv, err := s.conversions.GetByID(ctx, conversionID)
	if err != nil {
		return ConversionView{}, err
	}
	rows, err := s.attributions.ListByConversion(ctx, conversionID)
	if err != nil {
		return ConversionView{}, err
	}
	return ConversionView{Conversion: conv, Revenue: rows}, nil
}

// ChannelReport aggregates credited revenue per channel for one model.
func (s *Service) ChannelReport(ctx context.Context, q ChannelReportQuery) ([]ChannelReportRow, error) {
	if strings.TrimSpace(q.AccountID) == "" {
		return nil, domain.ErrInvalidInput
	}
	model := strings.ToLower(strings.TrimSpace(q.Model))
	switch model {
	case domain.ModelFirstTouch, domain.ModelLastTouch, domain.ModelLinear, domain.ModelRecurring:
	default:
		return nil, domain.ErrInvalidInput
	}
	sums, err := s.attributions.SumByChannel(ctx, strings.TrimSpace(q.AccountID), model, q.Since, q.Until)
	if err != nil {
		return nil, err
	}
	rows := make([]ChannelReportRow, 0, len(sums))
	for _, sum := range sums {
		rows = append(rows, ChannelReportRow{
			Channel:     sum.Channel,
			Model:       sum.Model,
			AmountCents: sum.AmountCents,
			Conversions: sum.Conversions,
		})
	}
	return rows, nil
}

// ResolvePreview runs the resolver over current candidates without writing
// anything. Exposed on the internal gRPC surface for sibling services.
func (s *Service) ResolvePreview(ctx context.Context, req ResolvePreviewRequest) (ResolvePreviewResponse, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return ResolvePreviewResponse{}, domain.ErrInvalidInput
	}
	at := s.nowFn()
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		at = req.OccurredAt.UTC()
	}
	candidates, err := s.fetchCandidates(ctx, strings.TrimSpace(req.AccountID), domain.NormalizeToken(req.IdentityID), req.Signals.Email, at)
	if err != nil {
		return ResolvePreviewResponse{}, err
	}
	resolution := domain.Resolve(toDomainSignals(req.Signals, at), candidates)
	return ResolvePreviewResponse{
		Method:     resolution.Method,
		Confidence: resolution.Confidence,
		Touchpoint: resolution.Touchpoint,
		MultiTouch: resolution.MultiTouch,
		Candidates: len(candidates),
	}, nil
}
