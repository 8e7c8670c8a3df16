package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type touchpointModel struct {
	TouchpointID string     `gorm:"column:touchpoint_id;primaryKey"`
	AccountID    string     `gorm:"column:account_id;index"`
	IdentityID   *string    `gorm:"column:identity_id"`
	UserID       *string    `gorm:"column:user_id"`
	ShortID      *string    `gorm:"column:short_id"`
	UTMSource    string     `gorm:"column:utm_source"`
	UTMMedium    string     `gorm:"column:utm_medium"`
	UTMCampaign  string     `gorm:"column:utm_campaign"`
	UTMTerm      string     `gorm:"column:utm_term"`
	UTMContent   string     `gorm:"column:utm_content"`
	Referrer     string     `gorm:"column:referrer"`
	Email        *string    `gorm:"column:email"`
	Fingerprint  *string    `gorm:"column:fingerprint"`
	IPAddress    *string    `gorm:"column:ip_address"`
	UserAgent    string     `gorm:"column:user_agent"`
	SessionID    *string    `gorm:"column:session_id"`
	CookieID     *string    `gorm:"column:cookie_id"`
	OccurredAt   time.Time  `gorm:"column:occurred_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
}

func (touchpointModel) TableName() string { return "touchpoints" }

type identityModel struct {
	IdentityID   string         `gorm:"column:identity_id;primaryKey"`
	AccountID    string         `gorm:"column:account_id;index"`
	Emails       pq.StringArray `gorm:"column:emails;type:text[]"`
	Phones       pq.StringArray `gorm:"column:phones;type:text[]"`
	Fingerprints pq.StringArray `gorm:"column:fingerprints;type:text[]"`
	UserID       *string        `gorm:"column:user_id"`
	SessionID    *string        `gorm:"column:session_id"`
	IPAddress    *string        `gorm:"column:ip_address"`
	UserAgent    string         `gorm:"column:user_agent"`
	Confidence   int            `gorm:"column:confidence"`
	FirstSeenAt  time.Time      `gorm:"column:first_seen_at"`
	LastSeenAt   time.Time      `gorm:"column:last_seen_at"`
}

func (identityModel) TableName() string { return "identities" }

type conversionModel struct {
	ConversionID           string     `gorm:"column:conversion_id;primaryKey"`
	AccountID              string     `gorm:"column:account_id;index"`
	IdentityID             *string    `gorm:"column:identity_id"`
	UserID                 *string    `gorm:"column:user_id"`
	Email                  *string    `gorm:"column:email"`
	Kind                   string     `gorm:"column:kind"`
	AmountCents            int64      `gorm:"column:amount_cents"`
	Currency               string     `gorm:"column:currency"`
	OccurredAt             time.Time  `gorm:"column:occurred_at"`
	AttributionState       string     `gorm:"column:attribution_state;index"`
	AttributedTouchpointID *string    `gorm:"column:attributed_touchpoint_id"`
	AttributionMethod      *string    `gorm:"column:attribution_method"`
	Confidence             *int       `gorm:"column:confidence"`
	ResolvedAt             *time.Time `gorm:"column:resolved_at"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (conversionModel) TableName() string { return "conversions" }

type revenueAttributionModel struct {
	AttributionID    string    `gorm:"column:attribution_id;primaryKey"`
	WriteKey         string    `gorm:"column:write_key;uniqueIndex"`
	ConversionID     string    `gorm:"column:conversion_id;index"`
	AccountID        string    `gorm:"column:account_id;index"`
	Model            string    `gorm:"column:model"`
	TouchpointID     *string   `gorm:"column:touchpoint_id"`
	Channel          string    `gorm:"column:channel"`
	AmountCents      int64     `gorm:"column:amount_cents"`
	Currency         string    `gorm:"column:currency"`
	Path             string    `gorm:"column:path;type:jsonb"`
	DaysToConversion int       `gorm:"column:days_to_conversion"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (revenueAttributionModel) TableName() string { return "revenue_attributions" }

type attributionOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (attributionOutboxModel) TableName() string { return "attribution_outbox" }

type attributionIdempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:jsonb"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (attributionIdempotencyModel) TableName() string { return "attribution_idempotency" }
