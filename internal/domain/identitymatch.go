package domain

// Signal weights for the batch identity-match scorer. This scorer is a
// different algorithm from the click-attribution ladder: imports and webhook
// backfills need a deduplication threshold over whatever signals a row
// happens to carry, not a single-best-match precedence. The two stay
// separate types on purpose.
const (
	weightUserID      = 40
	weightEmail       = 30
	weightPhone       = 25
	weightFingerprint = 20
	weightSessionID   = 15
	weightIP          = 10
	weightUserAgent   = 5

	// identityMatchThreshold is the weighted-confidence percentage at or
	// above which an incoming row is declared the same visitor.
	identityMatchThreshold = 50
)

// IdentitySignals is one incoming row of an import or webhook backfill,
// normalized before comparison.
type IdentitySignals struct {
	UserID      string
	Email       string
	Phone       string
	Fingerprint string
	SessionID   string
	IPAddress   string
	UserAgent   string
}

// Normalize canonicalizes every comparison field of the row.
func (s IdentitySignals) Normalize() IdentitySignals {
	return IdentitySignals{
		UserID:      NormalizeToken(s.UserID),
		Email:       NormalizeEmail(s.Email),
		Phone:       NormalizePhone(s.Phone),
		Fingerprint: NormalizeToken(s.Fingerprint),
		SessionID:   NormalizeToken(s.SessionID),
		IPAddress:   NormalizeIP(s.IPAddress),
		UserAgent:   NormalizeToken(s.UserAgent),
	}
}

// IdentityMatch is the weighted-scorer verdict for one candidate identity.
type IdentityMatch struct {
	Confidence int
	Matched    bool
}

// MatchIdentity scores an incoming signal row against one candidate
// identity. Confidence is the matched fraction of the applicable weight: a
// signal counts toward the applicable weight only when both sides carry a
// value for it, so sparse rows are judged on what they actually provide.
func MatchIdentity(incoming IdentitySignals, candidate Identity) IdentityMatch {
	in := incoming.Normalize()

	applicable := 0
	matched := 0

	compare := func(weight int, provided bool, hit bool) {
		if !provided {
			return
		}
		applicable += weight
		if hit {
			matched += weight
		}
	}

	compare(weightUserID, in.UserID != "" && candidate.UserID != "", in.UserID == candidate.UserID)
	compare(weightEmail, in.Email != "" && len(candidate.Emails) > 0, candidate.HasEmail(in.Email))
	compare(weightPhone, in.Phone != "" && len(candidate.Phones) > 0, candidate.HasPhone(in.Phone))
	compare(weightFingerprint, in.Fingerprint != "" && len(candidate.Fingerprints) > 0, candidate.HasFingerprint(in.Fingerprint))
	compare(weightSessionID, in.SessionID != "" && candidate.SessionID != "", in.SessionID == candidate.SessionID)
	compare(weightIP, in.IPAddress != "" && candidate.IPAddress != "", in.IPAddress == NormalizeIP(candidate.IPAddress))
	compare(weightUserAgent, in.UserAgent != "" && candidate.UserAgent != "", in.UserAgent == candidate.UserAgent)

	if applicable == 0 {
		return IdentityMatch{Confidence: 0, Matched: false}
	}
	confidence := clampConfidence(matched * 100 / applicable)
	return IdentityMatch{
		Confidence: confidence,
		Matched:    confidence >= identityMatchThreshold,
	}
}
