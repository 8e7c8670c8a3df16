package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/domain"
)

// TouchpointQuery is the bounded candidate fetch for attribution. The
// resolver works over one ordered read; per-field follow-up queries are not
// part of this contract.
type TouchpointQuery struct {
	AccountID  string
	IdentityID string
	Email      string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// TouchpointRepository persists immutable visit/click records. Append-only:
// touchpoints are never updated once written.
type TouchpointRepository interface {
	Append(ctx context.Context, tp domain.Touchpoint) error
	GetByID(ctx context.Context, touchpointID string) (domain.Touchpoint, error)
	ListCandidates(ctx context.Context, q TouchpointQuery) ([]domain.Touchpoint, error)
}

// IdentitySignalAppend carries evidence to union into an identity. The
// storage layer applies it as an atomic array-append with dedup, never a
// read-modify-write in application code.
type IdentitySignalAppend struct {
	Emails       []string
	Phones       []string
	Fingerprints []string
	UserID       string
	SessionID    string
	IPAddress    string
	UserAgent    string
	Confidence   int
	SeenAt       time.Time
}

// IdentityRepository manages probabilistic visitor clusters. Identities are
// created on first-seen signal and only ever accumulate evidence.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, identityID string) (domain.Identity, error)
	ListByAnySignal(ctx context.Context, accountID string, signals domain.IdentitySignals, limit int) ([]domain.Identity, error)
	AppendSignals(ctx context.Context, identityID string, appendix IdentitySignalAppend) (domain.Identity, error)
}

// ConversionAttributionUpdate fills a conversion's attribution fields. The
// repository applies it only while the conversion is still pending, so first
// resolution wins.
type ConversionAttributionUpdate struct {
	TouchpointID string
	Method       string
	Confidence   int
	State        string
	ResolvedAt   time.Time
}

// ConversionRepository persists revenue events and their resolution state.
type ConversionRepository interface {
	Create(ctx context.Context, conv domain.Conversion) error
	GetByID(ctx context.Context, conversionID string) (domain.Conversion, error)
	ApplyAttribution(ctx context.Context, conversionID string, update ConversionAttributionUpdate) error
	SetState(ctx context.Context, conversionID, state string, at time.Time) error
	ListByState(ctx context.Context, state string, limit int) ([]domain.Conversion, error)
}

// RevenueAttributionRepository writes credited revenue rows. Append is keyed
// on (conversion, model, touchpoint) and must swallow duplicate writes so a
// reconciliation re-run cannot double-credit.
type RevenueAttributionRepository interface {
	Append(ctx context.Context, row domain.RevenueAttribution) error
	ListByConversion(ctx context.Context, conversionID string) ([]domain.RevenueAttribution, error)
	SumByChannel(ctx context.Context, accountID, model string, since, until time.Time) ([]ChannelRevenue, error)
}

// ChannelRevenue is one aggregate row of the channel report.
type ChannelRevenue struct {
	Channel     string
	Model       string
	AmountCents int64
	Conversions int
}

// IdempotencyRecord tracks a previously accepted mutating request.
// Storing response metadata lets handlers return stable replay responses.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdempotencyRepository enforces idempotent mutation semantics.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for domain events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
