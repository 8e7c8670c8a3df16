package domain

import "time"

// Method names reported by the resolver. Each maps to one rung of the
// precedence ladder.
const (
	MethodDirectLink    = "direct_link"
	MethodUserID        = "user_id"
	MethodSession       = "session"
	MethodCookie        = "cookie"
	MethodFingerprint   = "device_fingerprint"
	MethodEmail         = "email_match"
	MethodIP            = "ip_match"
	MethodProbabilistic = "probabilistic"
	MethodUnattributed  = "unattributed"
)

// Signals are the conversion-time inputs to the click-attribution scorer.
// Every field is optional; a missing signal simply cannot match its tier.
type Signals struct {
	DirectLinkID string
	UserID       string
	SessionID    string
	CookieID     string
	Fingerprint  string
	Email        string
	IPAddress    string
	UTM          UTMParams
	OccurredAt   time.Time
}

// floorConfidence is returned when no signal overlaps a candidate. The floor
// is 30, not 0: a candidate inside the lookback window carries irreducible
// uncertainty, not proof of no relationship.
const floorConfidence = 30

// scoreTier is one rung of the ladder. Tiers are evaluated top-down and the
// first match wins; the ladder is not additive.
type scoreTier struct {
	method string
	score  func(s Signals, tp Touchpoint) (int, bool)
}

var ladder = []scoreTier{
	{MethodDirectLink, func(s Signals, tp Touchpoint) (int, bool) {
		return 95, s.DirectLinkID != "" && s.DirectLinkID == tp.ShortID
	}},
	{MethodUserID, func(s Signals, tp Touchpoint) (int, bool) {
		return 90, s.UserID != "" && s.UserID == tp.UserID
	}},
	{MethodSession, func(s Signals, tp Touchpoint) (int, bool) {
		return 85, s.SessionID != "" && s.SessionID == tp.SessionID
	}},
	{MethodCookie, func(s Signals, tp Touchpoint) (int, bool) {
		return 80, s.CookieID != "" && s.CookieID == tp.CookieID
	}},
	{MethodFingerprint, func(s Signals, tp Touchpoint) (int, bool) {
		if s.Fingerprint == "" || s.Fingerprint != tp.Fingerprint {
			return 0, false
		}
		return decayedScore(s.OccurredAt.Sub(tp.OccurredAt), []decayStep{
			{24 * time.Hour, 75},
			{7 * 24 * time.Hour, 70},
			{30 * 24 * time.Hour, 65},
		}, 60), true
	}},
	{MethodEmail, func(s Signals, tp Touchpoint) (int, bool) {
		return 70, s.Email != "" && NormalizeEmail(s.Email) == NormalizeEmail(tp.Email) && tp.Email != ""
	}},
	{MethodIP, func(s Signals, tp Touchpoint) (int, bool) {
		if s.IPAddress == "" || NormalizeIP(s.IPAddress) != NormalizeIP(tp.IPAddress) || tp.IPAddress == "" {
			return 0, false
		}
		return decayedScore(s.OccurredAt.Sub(tp.OccurredAt), []decayStep{
			{time.Hour, 65},
			{24 * time.Hour, 55},
		}, 45), true
	}},
	{MethodProbabilistic, func(s Signals, tp Touchpoint) (int, bool) {
		return 50, utmMatches(s.UTM, tp.UTM)
	}},
}

type decayStep struct {
	within time.Duration
	score  int
}

func decayedScore(age time.Duration, steps []decayStep, floor int) int {
	for _, step := range steps {
		if age < step.within {
			return step.score
		}
	}
	return floor
}

// utmMatches requires every provided UTM field to match exactly. A conversion
// with no UTM signal at all cannot claim this tier.
func utmMatches(sig, tp UTMParams) bool {
	if sig.Empty() {
		return false
	}
	checks := [][2]string{
		{sig.Source, tp.Source},
		{sig.Medium, tp.Medium},
		{sig.Campaign, tp.Campaign},
		{sig.Term, tp.Term},
		{sig.Content, tp.Content},
	}
	for _, c := range checks {
		if c[0] != "" && c[0] != c[1] {
			return false
		}
	}
	return true
}

// ScoreTouchpoint runs the precedence ladder for one candidate and returns
// the confidence in [0,100] plus the method name of the winning tier.
func ScoreTouchpoint(s Signals, tp Touchpoint) (int, string) {
	for _, tier := range ladder {
		if score, ok := tier.score(s, tp); ok {
			return clampConfidence(score), tier.method
		}
	}
	return floorConfidence, MethodUnattributed
}

func clampConfidence(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
