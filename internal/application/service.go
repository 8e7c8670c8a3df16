package application

import (
	"time"

	"github.com/allumi/attribution-service/internal/ports"
)

// Config holds the attribution policy knobs resolved at bootstrap.
type Config struct {
	LookbackWindow     time.Duration
	CandidateLimit     int
	CandidateFetchTime time.Duration
	Models             []string
	IdempotencyTTL     time.Duration
	DedupTTL           time.Duration
	TrackRateThreshold int64
	TrackRateWindow    time.Duration
}

type Service struct {
	cfg          Config
	touchpoints  ports.TouchpointRepository
	identities   ports.IdentityRepository
	conversions  ports.ConversionRepository
	attributions ports.RevenueAttributionRepository
	idempotency  ports.IdempotencyRepository
	outbox       ports.OutboxRepository
	dedup        ports.EventDedupStore
	rateLimits   ports.RateLimitStore
	nowFn        func() time.Time
}

type Dependencies struct {
	Config       Config
	Touchpoints  ports.TouchpointRepository
	Identities   ports.IdentityRepository
	Conversions  ports.ConversionRepository
	Attributions ports.RevenueAttributionRepository
	Idempotency  ports.IdempotencyRepository
	Outbox       ports.OutboxRepository
	Dedup        ports.EventDedupStore
	RateLimits   ports.RateLimitStore
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = 90 * 24 * time.Hour
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 200
	}
	if cfg.CandidateFetchTime <= 0 {
		cfg.CandidateFetchTime = 5 * time.Second
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{"first_touch", "last_touch", "linear"}
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 72 * time.Hour
	}
	return &Service{
		cfg:          cfg,
		touchpoints:  deps.Touchpoints,
		identities:   deps.Identities,
		conversions:  deps.Conversions,
		attributions: deps.Attributions,
		idempotency:  deps.Idempotency,
		outbox:       deps.Outbox,
		dedup:        deps.Dedup,
		rateLimits:   deps.RateLimits,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}
