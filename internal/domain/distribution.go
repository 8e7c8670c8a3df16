package domain

import "time"

// PathSnapshot freezes the ordered conversion path at write time. Every
// revenue row for the same conversion carries an identical copy.
func PathSnapshot(journey []Touchpoint) []PathStep {
	if len(journey) == 0 {
		return nil
	}
	path := make([]PathStep, len(journey))
	for i, tp := range journey {
		path[i] = PathStep{Source: tp.ChannelKey(), OccurredAt: tp.OccurredAt}
	}
	return path
}

// DaysToConversion is the whole-day gap between the first touch of the
// journey and the conversion, floored.
func DaysToConversion(conversionAt time.Time, journey []Touchpoint) int {
	if len(journey) == 0 {
		return 0
	}
	gap := conversionAt.Sub(journey[0].OccurredAt)
	if gap < 0 {
		return 0
	}
	return int(gap.Hours() / 24)
}

// BuildDistribution expands a resolved conversion into revenue rows for the
// requested models. Integer cents keep per-model sums exact: the linear
// split hands the remainder out one cent at a time starting from the first
// touchpoint, so N rows always sum to the conversion amount.
func BuildDistribution(conv Conversion, journey []Touchpoint, models []string, now time.Time) []RevenueAttribution {
	if len(journey) == 0 {
		return nil
	}
	path := PathSnapshot(journey)
	days := DaysToConversion(conv.OccurredAt, journey)

	base := func(tp Touchpoint, model string, cents int64) RevenueAttribution {
		return RevenueAttribution{
			ConversionID:     conv.ConversionID,
			AccountID:        conv.AccountID,
			Model:            model,
			TouchpointID:     tp.TouchpointID,
			Channel:          tp.ChannelKey(),
			AmountCents:      cents,
			Currency:         conv.Currency,
			Path:             path,
			DaysToConversion: days,
			CreatedAt:        now,
		}
	}

	var rows []RevenueAttribution
	for _, model := range models {
		switch model {
		case ModelFirstTouch:
			rows = append(rows, base(journey[0], ModelFirstTouch, conv.AmountCents))
		case ModelLastTouch:
			rows = append(rows, base(journey[len(journey)-1], ModelLastTouch, conv.AmountCents))
		case ModelLinear:
			n := int64(len(journey))
			share := conv.AmountCents / n
			remainder := conv.AmountCents - share*n
			for i, tp := range journey {
				cents := share
				if int64(i) < remainder {
					cents++
				}
				rows = append(rows, base(tp, ModelLinear, cents))
			}
		}
	}
	return rows
}

// BuildRecurringRecord credits renewal revenue to the synthetic subscription
// channel. No touchpoint lookup happens for renewals; the one row carries the
// full amount.
func BuildRecurringRecord(conv Conversion, now time.Time) RevenueAttribution {
	return RevenueAttribution{
		ConversionID: conv.ConversionID,
		AccountID:    conv.AccountID,
		Model:        ModelRecurring,
		Channel:      RecurringChannel,
		AmountCents:  conv.AmountCents,
		Currency:     conv.Currency,
		CreatedAt:    now,
	}
}
