package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

func hashJSON(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// getIdempotent replays a completed response for a reused key and rejects key
// reuse with a different request body.
func (s *Service) getIdempotent(ctx context.Context, key, expectedHash string) ([]byte, bool, error) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil, false, nil
	}
	rec, err := s.idempotency.Get(ctx, key)
	if err != nil || rec == nil {
		return nil, false, err
	}
	if rec.RequestHash != expectedHash {
		return nil, false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		return nil, false, nil
	}
	return rec.ResponseBody, true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, key, requestHash string) error {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	if err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
	}
	return nil
}

func (s *Service) completeIdempotencyJSON(ctx context.Context, key string, code int, v any) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return
	}
	raw, _ := json.Marshal(v)
	_ = s.idempotency.Complete(ctx, key, code, raw, s.nowFn())
}

func (s *Service) enqueueEvent(ctx context.Context, eventType, partitionKey string, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	_ = s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      raw,
		OccurredAt:   s.nowFn(),
	})
}

// fetchCandidates is the single bounded read feeding the in-memory resolver.
// The explicit timeout keeps a slow store from stalling conversion ingestion;
// scorer computation after this point is pure and needs no cancellation.
func (s *Service) fetchCandidates(ctx context.Context, accountID, identityID, email string, conversionAt time.Time) ([]domain.Touchpoint, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.CandidateFetchTime)
	defer cancel()

	rows, err := s.touchpoints.ListCandidates(fetchCtx, ports.TouchpointQuery{
		AccountID:  accountID,
		IdentityID: identityID,
		Email:      domain.NormalizeEmail(email),
		Since:      conversionAt.Add(-s.cfg.LookbackWindow),
		Until:      conversionAt,
		Limit:      s.cfg.CandidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list candidates: %v", domain.ErrStoreUnavailable, err)
	}
	return rows, nil
}

func toDomainSignals(in ConversionSignals, at time.Time) domain.Signals {
	return domain.Signals{
		DirectLinkID: domain.NormalizeToken(in.DirectLinkID),
		UserID:       domain.NormalizeToken(in.UserID),
		SessionID:    domain.NormalizeToken(in.SessionID),
		CookieID:     domain.NormalizeToken(in.CookieID),
		Fingerprint:  domain.NormalizeToken(in.Fingerprint),
		Email:        domain.NormalizeEmail(in.Email),
		IPAddress:    domain.NormalizeIP(in.IPAddress),
		UTM:          in.UTM,
		OccurredAt:   at,
	}
}
