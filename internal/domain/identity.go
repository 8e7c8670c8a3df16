package domain

import "time"

// Identity is a probabilistic cluster of signals believed to belong to one
// visitor. Signal sets only ever grow; merging evidence is a union, never a
// replacement, so concurrent capture events cannot lose each other's writes.
type Identity struct {
	IdentityID   string    `json:"identity_id"`
	AccountID    string    `json:"account_id"`
	Emails       []string  `json:"emails"`
	Phones       []string  `json:"phones,omitempty"`
	Fingerprints []string  `json:"fingerprints"`
	UserID       string    `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Confidence   int       `json:"confidence"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// HasEmail reports set membership on the identity's email evidence.
func (i Identity) HasEmail(email string) bool {
	for _, e := range i.Emails {
		if e == email {
			return true
		}
	}
	return false
}

// HasFingerprint reports set membership on the identity's fingerprint evidence.
func (i Identity) HasFingerprint(fp string) bool {
	for _, f := range i.Fingerprints {
		if f == fp {
			return true
		}
	}
	return false
}

// HasPhone reports set membership on the identity's phone evidence.
func (i Identity) HasPhone(phone string) bool {
	for _, p := range i.Phones {
		if p == phone {
			return true
		}
	}
	return false
}
