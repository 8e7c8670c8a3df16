package domain

import "time"

// UTMParams carries the campaign tagging fields captured on a tracked visit.
type UTMParams struct {
	Source   string `json:"utm_source"`
	Medium   string `json:"utm_medium"`
	Campaign string `json:"utm_campaign"`
	Term     string `json:"utm_term"`
	Content  string `json:"utm_content"`
}

// Empty reports whether no UTM field is set.
func (u UTMParams) Empty() bool {
	return u.Source == "" && u.Medium == "" && u.Campaign == "" && u.Term == "" && u.Content == ""
}

// Touchpoint is a recorded click or tracked page view. Rows are immutable
// once created; attribution lookups apply a lookback window but nothing
// expires the record itself.
type Touchpoint struct {
	TouchpointID string    `json:"touchpoint_id"`
	AccountID    string    `json:"account_id"`
	IdentityID   string    `json:"identity_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	ShortID      string    `json:"short_id,omitempty"`
	UTM          UTMParams `json:"utm"`
	Referrer     string    `json:"referrer,omitempty"`
	Email        string    `json:"email,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	CookieID     string    `json:"cookie_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ChannelKey returns the campaign-or-source grouping key for a touchpoint.
// Multi-touch credit and revenue records are labeled by this key.
func (t Touchpoint) ChannelKey() string {
	if t.UTM.Campaign != "" {
		return t.UTM.Campaign
	}
	if t.UTM.Source != "" {
		return t.UTM.Source
	}
	return "direct"
}
