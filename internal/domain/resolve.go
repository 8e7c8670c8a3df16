package domain

import (
	"math"
	"sort"
	"time"
)

// multiTouchThreshold is the primary-pick confidence at or above which a
// multi-touch distribution is also computed.
const multiTouchThreshold = 50

// decayHalfLifeDays tunes the exponential time decay exp(-days/7) used for
// multi-touch weighting; the effective half-life is about 4.85 days.
const decayHalfLifeDays = 7.0

// CampaignCredit is one normalized slice of multi-touch credit, grouped by
// the campaign-or-source channel key rather than per touchpoint.
type CampaignCredit struct {
	Channel string  `json:"channel"`
	Weight  float64 `json:"weight"`
}

// Resolution is the outcome of scanning one conversion's candidates.
// Touchpoint is nil only for the no-candidates case.
type Resolution struct {
	Touchpoint *Touchpoint
	Confidence int
	Method     string
	MultiTouch []CampaignCredit
}

// Resolve scans candidate touchpoints (chronological order, already fetched)
// and picks the best-scoring one as the primary attribution. Scoring is a
// pure function of its inputs: resolving twice over the same candidates
// yields the same primary, confidence, and method.
func Resolve(s Signals, candidates []Touchpoint) Resolution {
	if len(candidates) == 0 {
		return Resolution{Confidence: 0, Method: MethodUnattributed}
	}

	bestIdx := 0
	bestScore := -1
	bestMethod := MethodUnattributed
	for i, tp := range candidates {
		score, method := ScoreTouchpoint(s, tp)
		if score > bestScore {
			bestIdx, bestScore, bestMethod = i, score, method
		}
	}

	res := Resolution{
		Touchpoint: &candidates[bestIdx],
		Confidence: bestScore,
		Method:     bestMethod,
	}
	if bestScore >= multiTouchThreshold && len(candidates) > 1 {
		res.MultiTouch = multiTouchCredits(s.OccurredAt, candidates, bestIdx)
	}
	return res
}

// multiTouchCredits distributes credit across all candidates with
// exponential time decay and positional multipliers, then normalizes the
// weights to sum 1.0 grouped by channel key. Multipliers stack: the primary
// pick that is also the chronologically first touch gets 1.5 x 1.2.
func multiTouchCredits(conversionAt time.Time, candidates []Touchpoint, primaryIdx int) []CampaignCredit {
	weights := make([]float64, len(candidates))
	total := 0.0
	for i, tp := range candidates {
		days := conversionAt.Sub(tp.OccurredAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		w := math.Exp(-days / decayHalfLifeDays)
		if i == primaryIdx {
			w *= 1.5
		}
		if i == 0 {
			w *= 1.2
		}
		if i == len(candidates)-1 {
			w *= 1.1
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return nil
	}

	byChannel := make(map[string]float64, len(candidates))
	for i, tp := range candidates {
		byChannel[tp.ChannelKey()] += weights[i] / total
	}

	credits := make([]CampaignCredit, 0, len(byChannel))
	for channel, weight := range byChannel {
		credits = append(credits, CampaignCredit{Channel: channel, Weight: weight})
	}
	sort.Slice(credits, func(i, j int) bool {
		if credits[i].Weight != credits[j].Weight {
			return credits[i].Weight > credits[j].Weight
		}
		return credits[i].Channel < credits[j].Channel
	})
	return credits
}
