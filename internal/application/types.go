package application

import (
	"time"

	"github.com/allumi/attribution-service/internal/domain"
)

type RecordTouchpointRequest struct {
	AccountID  string           `json:"account_id"`
	IdentityID string           `json:"identity_id,omitempty"`
	UserID     string           `json:"user_id,omitempty"`
	ShortID    string           `json:"short_id,omitempty"`
	UTM        domain.UTMParams `json:"utm"`
	Referrer   string           `json:"referrer,omitempty"`
	Email      string           `json:"email,omitempty"`
	Phone      string           `json:"phone,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	CookieID   string           `json:"cookie_id,omitempty"`

	// Fingerprint comes from the client bundle when the tracking script ran;
	// otherwise Headers lets the service derive the server-side variant.
	Fingerprint   string                `json:"fingerprint,omitempty"`
	ClientEntropy *domain.ClientEntropy `json:"client_entropy,omitempty"`
	Headers       FingerprintHeaders    `json:"headers"`
	OccurredAt    *time.Time            `json:"occurred_at,omitempty"`
}

type FingerprintHeaders struct {
	ForwardedFor   string `json:"forwarded_for,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	AcceptEncoding string `json:"accept_encoding,omitempty"`
	Accept         string `json:"accept,omitempty"`
}

type RecordTouchpointResponse struct {
	TouchpointID string `json:"touchpoint_id"`
	IdentityID   string `json:"identity_id,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	CookieID     string `json:"cookie_id"`
}

type RecordConversionRequest struct {
	AccountID   string `json:"account_id"`
	IdentityID  string `json:"identity_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	// UpstreamEventID is the Stripe/Whop/Zapier event id, used for webhook
	// redelivery dedup.
	UpstreamEventID string     `json:"upstream_event_id,omitempty"`
	OccurredAt      *time.Time `json:"occurred_at,omitempty"`

	Signals ConversionSignals `json:"signals"`
}

type ConversionSignals struct {
	DirectLinkID string           `json:"direct_link_id,omitempty"`
	UserID       string           `json:"user_id,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	CookieID     string           `json:"cookie_id,omitempty"`
	Fingerprint  string           `json:"fingerprint,omitempty"`
	Email        string           `json:"email,omitempty"`
	IPAddress    string           `json:"ip_address,omitempty"`
	UTM          domain.UTMParams `json:"utm"`
}

type RecordConversionResponse struct {
	ConversionID     string                  `json:"conversion_id"`
	AttributionState string                  `json:"attribution_state"`
	Method           string                  `json:"method,omitempty"`
	Confidence       *int                    `json:"confidence,omitempty"`
	TouchpointID     string                  `json:"touchpoint_id,omitempty"`
	MultiTouch       []domain.CampaignCredit `json:"multi_touch,omitempty"`
	Duplicate        bool                    `json:"duplicate,omitempty"`
}

type ConversionView struct {
	Conversion domain.Conversion           `json:"conversion"`
	Revenue    []domain.RevenueAttribution `json:"revenue,omitempty"`
}

type ReconcileResponse struct {
	ConversionID string `json:"conversion_id"`
	State        string `json:"state"`
	RowsWritten  int    `json:"rows_written"`
}

type ResolvePreviewRequest struct {
	AccountID  string            `json:"account_id"`
	IdentityID string            `json:"identity_id,omitempty"`
	Signals    ConversionSignals `json:"signals"`
	OccurredAt *time.Time        `json:"occurred_at,omitempty"`
}

type ResolvePreviewResponse struct {
	Method     string                  `json:"method"`
	Confidence int                     `json:"confidence"`
	Touchpoint *domain.Touchpoint      `json:"touchpoint,omitempty"`
	MultiTouch []domain.CampaignCredit `json:"multi_touch,omitempty"`
	Candidates int                     `json:"candidates"`
}

type ImportIdentityRow struct {
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

type ImportIdentitiesRequest struct {
	AccountID string              `json:"account_id"`
	Rows      []ImportIdentityRow `json:"rows"`
}

type ImportRowResult struct {
	IdentityID string `json:"identity_id"`
	Confidence int    `json:"confidence"`
	Created    bool   `json:"created"`
}

type ImportIdentitiesResponse struct {
	Results []ImportRowResult `json:"results"`
	Matched int               `json:"matched"`
	Created int               `json:"created"`
}

type ChannelReportQuery struct {
	AccountID string
	Model     string
	Since     time.Time
	Until     time.Time
}

type ChannelReportRow struct {
	Channel     string `json:"channel"`
	Model       string `json:"model"`
	AmountCents int64  `json:"amount_cents"`
	Conversions int    `json:"conversions"`
}
