package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

// RecordTouchpoint ingests one tracked visit or click. The touchpoint row is
// immutable from here on; identity evidence is unioned separately so two
// concurrent captures for the same visitor cannot clobber each other.
func (s *Service) RecordTouchpoint(ctx context.Context, req RecordTouchpointRequest) (RecordTouchpointResponse, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return RecordTouchpointResponse{}, domain.ErrInvalidInput
	}

	now := s.nowFn()
	occurredAt := now
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		occurredAt = req.OccurredAt.UTC()
	}

	clientIP := domain.NormalizeIP(req.Headers.ForwardedFor)
	if s.rateLimits != nil && clientIP != "" {
		hits, err := s.rateLimits.Hit(ctx, "track:"+clientIP, s.cfg.TrackRateWindow)
		if err == nil && s.cfg.TrackRateThreshold > 0 && hits > s.cfg.TrackRateThreshold {
			return RecordTouchpointResponse{}, domain.ErrRateLimited
		}
	}

	fingerprint := domain.NormalizeToken(req.Fingerprint)
	if fingerprint == "" && req.ClientEntropy != nil {
		fingerprint = domain.ClientFingerprint(*req.ClientEntropy)
	}
	if fingerprint == "" && req.Headers.UserAgent != "" {
		fingerprint = domain.ServerFingerprint(domain.ServerFingerprintInput{
			ForwardedFor:   req.Headers.ForwardedFor,
			UserAgent:      req.Headers.UserAgent,
			AcceptLanguage: req.Headers.AcceptLanguage,
			AcceptEncoding: req.Headers.AcceptEncoding,
			Accept:         req.Headers.Accept,
		}, now)
	}

	cookieID := domain.NormalizeToken(req.CookieID)
	if cookieID == "" {
		cookieID = uuid.NewString()
	}

	email := domain.NormalizeEmail(req.Email)
	identityID, err := s.attachIdentity(ctx, attachIdentityInput{
		AccountID:   strings.TrimSpace(req.AccountID),
		IdentityID:  domain.NormalizeToken(req.IdentityID),
		Email:       email,
		Phone:       domain.NormalizePhone(req.Phone),
		Fingerprint: fingerprint,
		SessionID:   domain.NormalizeToken(req.SessionID),
		IPAddress:   clientIP,
		UserAgent:   req.Headers.UserAgent,
		SeenAt:      occurredAt,
	})
	if err != nil {
		return RecordTouchpointResponse{}, err
	}

	tp := domain.Touchpoint{
		TouchpointID: "tp_" + uuid.NewString(),
		AccountID:    strings.TrimSpace(req.AccountID),
		IdentityID:   identityID,
		UserID:       domain.NormalizeToken(req.UserID),
		ShortID:      domain.NormalizeToken(req.ShortID),
		UTM:          req.UTM,
		Referrer:     strings.TrimSpace(req.Referrer),
		Email:        email,
		Fingerprint:  fingerprint,
		IPAddress:    clientIP,
		UserAgent:    req.Headers.UserAgent,
		SessionID:    domain.NormalizeToken(req.SessionID),
		CookieID:     cookieID,
		OccurredAt:   occurredAt,
	}
	if err := s.touchpoints.Append(ctx, tp); err != nil {
		return RecordTouchpointResponse{}, err
	}

	s.enqueueEvent(ctx, "attribution.touchpoint.recorded", tp.AccountID, map[string]any{
		"touchpoint_id": tp.TouchpointID,
		"identity_id":   tp.IdentityID,
		"channel":       tp.ChannelKey(),
		"occurred_at":   tp.OccurredAt,
	})

	return RecordTouchpointResponse{
		TouchpointID: tp.TouchpointID,
		IdentityID:   tp.IdentityID,
		Fingerprint:  tp.Fingerprint,
		CookieID:     tp.CookieID,
	}, nil
}

type attachIdentityInput struct {
	AccountID   string
	IdentityID  string
	Email       string
	Phone       string
	Fingerprint string
	SessionID   string
	IPAddress   string
	UserAgent   string
	SeenAt      time.Time
}

// attachIdentity finds or creates the identity cluster for a tracked visit
// and unions the fresh evidence into it. Returns empty when the visit carries
// nothing identifying. The append is an atomic union at the storage layer;
// two concurrent captures for the same visitor both land.
func (s *Service) attachIdentity(ctx context.Context, in attachIdentityInput) (string, error) {
	if s.identities == nil {
		return in.IdentityID, nil
	}

	appendix := ports.IdentitySignalAppend{
		SessionID: in.SessionID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		SeenAt:    in.SeenAt,
	}
	if in.Email != "" {
		appendix.Emails = []string{in.Email}
	}
	if in.Phone != "" {
		appendix.Phones = []string{in.Phone}
	}
	if in.Fingerprint != "" {
		appendix.Fingerprints = []string{in.Fingerprint}
	}

	if in.IdentityID != "" {
		appendix.Confidence = 100
		if _, err := s.identities.AppendSignals(ctx, in.IdentityID, appendix); err != nil {
			return "", err
		}
		return in.IdentityID, nil
	}
	if in.Email == "" && in.Fingerprint == "" {
		return "", nil
	}

	candidates, err := s.identities.ListByAnySignal(ctx, in.AccountID, domain.IdentitySignals{
		Email:       in.Email,
		Phone:       in.Phone,
		Fingerprint: in.Fingerprint,
	}, 5)
	if err != nil {
		return "", err
	}
	if len(candidates) > 0 {
		match := domain.MatchIdentity(domain.IdentitySignals{
			Email:       in.Email,
			Phone:       in.Phone,
			Fingerprint: in.Fingerprint,
			SessionID:   in.SessionID,
			IPAddress:   in.IPAddress,
			UserAgent:   in.UserAgent,
		}, candidates[0])
		appendix.Confidence = match.Confidence
		if _, err := s.identities.AppendSignals(ctx, candidates[0].IdentityID, appendix); err != nil {
			return "", err
		}
		return candidates[0].IdentityID, nil
	}

	identity := domain.Identity{
		IdentityID:   "id_" + uuid.NewString(),
		AccountID:    in.AccountID,
		Emails:       appendix.Emails,
		Phones:       appendix.Phones,
		Fingerprints: appendix.Fingerprints,
		SessionID:    in.SessionID,
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		Confidence:   100,
		FirstSeenAt:  in.SeenAt,
		LastSeenAt:   in.SeenAt,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return "", err
	}
	return identity.IdentityID, nil
}
