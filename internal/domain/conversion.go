package domain

import "time"

// Attribution lifecycle states for a conversion. A consumer sees either a
// fully attributed conversion or an explicit pending/unattributed state; a
// confidence is never shown for a channel that was not evaluated.
const (
	AttributionStatePending      = "pending"
	AttributionStateAttributed   = "attributed"
	AttributionStateUnattributed = "unattributed"
	// AttributionStateIncomplete marks a conversion whose resolution decision
	// is stored but whose per-model revenue rows only partially persisted.
	// The reconciliation pass repairs these.
	AttributionStateIncomplete = "incomplete"
)

// Conversion kinds accepted by the service.
const (
	ConversionKindSignup     = "signup"
	ConversionKindPurchase   = "purchase"
	ConversionKindMembership = "membership_join"
	ConversionKindRenewal    = "renewal"
)

// Conversion is a revenue-bearing event. Amounts are integer cents so model
// splits stay exact. Attribution fields are filled by the resolver at most
// once; first resolution wins. Email keeps the normalized signal that fed the
// candidate fetch: reconciliation re-fetches the same journey from it when the
// conversion has no identity.
type Conversion struct {
	ConversionID     string    `json:"conversion_id"`
	AccountID        string    `json:"account_id"`
	IdentityID       string    `json:"identity_id,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	Email            string    `json:"email,omitempty"`
	Kind             string    `json:"kind"`
	AmountCents      int64     `json:"amount_cents"`
	Currency         string    `json:"currency"`
	OccurredAt       time.Time `json:"occurred_at"`
	AttributionState string    `json:"attribution_state"`

	AttributedTouchpointID string `json:"attributed_touchpoint_id,omitempty"`
	AttributionMethod      string `json:"attribution_method,omitempty"`
	Confidence             *int   `json:"confidence,omitempty"`
}

// PathStep is one frozen entry of a conversion-path snapshot. Records carry a
// copy taken at write time, not a live reference to touchpoint rows.
type PathStep struct {
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Attribution models supported by the revenue distribution writer.
const (
	ModelFirstTouch = "first_touch"
	ModelLastTouch  = "last_touch"
	ModelLinear     = "linear"
	ModelRecurring  = "recurring"
)

// RecurringChannel is the synthetic channel renewals are credited to.
// Renewal revenue is not re-attributed to the original acquisition source.
const RecurringChannel = "subscription"

// RevenueAttribution is one credited row per (conversion, model, touchpoint).
// For a given conversion and model, credited amounts sum exactly to the
// conversion's revenue.
type RevenueAttribution struct {
	AttributionID    string     `json:"attribution_id"`
	ConversionID     string     `json:"conversion_id"`
	AccountID        string     `json:"account_id"`
	Model            string     `json:"model"`
	TouchpointID     string     `json:"touchpoint_id,omitempty"`
	Channel          string     `json:"channel"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	Path             []PathStep `json:"path"`
	DaysToConversion int        `json:"days_to_conversion"`
	CreatedAt        time.Time  `json:"created_at"`
}

// WriteKey is the deterministic idempotency key for a revenue row. Re-running
// a distribution after partial failure hits the same keys and cannot
// double-credit.
func (r RevenueAttribution) WriteKey() string {
	return r.ConversionID + ":" + r.Model + ":" + r.TouchpointID
}
