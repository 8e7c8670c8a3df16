package application

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

// ImportIdentities deduplicates a batch of signal rows (CSV or webhook
// backfill) against stored identities using the weighted scorer. Matched rows
// union their evidence into the winning identity; unmatched rows create a
// fresh one. This path deliberately uses the weighted scorer, not the
// click-attribution ladder, because batch dedup is a threshold problem over
// whatever signals a row happens to carry.
func (s *Service) ImportIdentities(ctx context.Context, req ImportIdentitiesRequest) (ImportIdentitiesResponse, error) {
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" || len(req.Rows) == 0 {
		return ImportIdentitiesResponse{}, domain.ErrInvalidInput
	}

	var out ImportIdentitiesResponse
	for _, row := range req.Rows {
		signals := domain.IdentitySignals{
			UserID:      row.UserID,
			Email:       row.Email,
			Phone:       row.Phone,
			Fingerprint: row.Fingerprint,
			SessionID:   row.SessionID,
			IPAddress:   row.IPAddress,
			UserAgent:   row.UserAgent,
		}.Normalize()

		candidates, err := s.identities.ListByAnySignal(ctx, accountID, signals, 10)
		if err != nil {
			return ImportIdentitiesResponse{}, err
		}

		best := domain.IdentityMatch{}
		bestID := ""
		for _, candidate := range candidates {
			match := domain.MatchIdentity(signals, candidate)
			if match.Matched && match.Confidence > best.Confidence {
				best = match
				bestID = candidate.IdentityID
			}
		}

		now := s.nowFn()
		if bestID != "" {
			appendix := ports.IdentitySignalAppend{
				UserID:     signals.UserID,
				SessionID:  signals.SessionID,
				IPAddress:  signals.IPAddress,
				UserAgent:  signals.UserAgent,
				Confidence: best.Confidence,
				SeenAt:     now,
			}
			if signals.Email != "" {
				appendix.Emails = []string{signals.Email}
			}
			if signals.Phone != "" {
				appendix.Phones = []string{signals.Phone}
			}
			if signals.Fingerprint != "" {
				appendix.Fingerprints = []string{signals.Fingerprint}
			}
			if _, err := s.identities.AppendSignals(ctx, bestID, appendix); err != nil {
				return ImportIdentitiesResponse{}, err
			}
			out.Results = append(out.Results, ImportRowResult{IdentityID: bestID, Confidence: best.Confidence})
			out.Matched++
			continue
		}

		identity := domain.Identity{
			IdentityID:  "id_" + uuid.NewString(),
			AccountID:   accountID,
			UserID:      signals.UserID,
			SessionID:   signals.SessionID,
			IPAddress:   signals.IPAddress,
			UserAgent:   signals.UserAgent,
			Confidence:  100,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		if signals.Email != "" {
			identity.Emails = []string{signals.Email}
		}
		if signals.Phone != "" {
			identity.Phones = []string{signals.Phone}
		}
		if signals.Fingerprint != "" {
			identity.Fingerprints = []string{signals.Fingerprint}
		}
		if err := s.identities.Create(ctx, identity); err != nil {
			return ImportIdentitiesResponse{}, err
		}
		out.Results = append(out.Results, ImportRowResult{IdentityID: identity.IdentityID, Confidence: 100, Created: true})
		out.Created++
	}
	return out, nil
}

// ListJourney returns an identity's ordered touchpoints within the lookback
// window ending now.
func (s *Service) ListJourney(ctx context.Context, accountID, identityID string) ([]domain.Touchpoint, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, domain.ErrInvalidInput
	}
	if _, err := s.identities.GetByID(ctx, identityID); err != nil {
		return nil, err
	}
	now := s.nowFn()
	return s.touchpoints.ListCandidates(ctx, ports.TouchpointQuery{
		AccountID:  strings.TrimSpace(accountID),
		IdentityID: identityID,
		Since:      now.Add(-s.cfg.LookbackWindow),
		Until:      now,
		Limit:      s.cfg.CandidateLimit,
	})
}
