package postgres

import (
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/allumi/attribution-service/internal/domain"
)

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func toDomainTouchpoint(row touchpointModel) domain.Touchpoint {
	return domain.Touchpoint{
		TouchpointID: row.TouchpointID,
		AccountID:    row.AccountID,
		IdentityID:   strOrEmpty(row.IdentityID),
		UserID:       strOrEmpty(row.UserID),
		ShortID:      strOrEmpty(row.ShortID),
		UTM: domain.UTMParams{
			Source:   row.UTMSource,
			Medium:   row.UTMMedium,
			Campaign: row.UTMCampaign,
			Term:     row.UTMTerm,
			Content:  row.UTMContent,
		},
		Referrer:    row.Referrer,
		Email:       strOrEmpty(row.Email),
		Fingerprint: strOrEmpty(row.Fingerprint),
		IPAddress:   strOrEmpty(row.IPAddress),
		UserAgent:   row.UserAgent,
		SessionID:   strOrEmpty(row.SessionID),
		CookieID:    strOrEmpty(row.CookieID),
		OccurredAt:  row.OccurredAt,
	}
}

func toDomainIdentity(row identityModel) domain.Identity {
	return domain.Identity{
		IdentityID:   row.IdentityID,
		AccountID:    row.AccountID,
		Emails:       []string(row.Emails),
		Phones:       []string(row.Phones),
		Fingerprints: []string(row.Fingerprints),
		UserID:       strOrEmpty(row.UserID),
		SessionID:    strOrEmpty(row.SessionID),
		IPAddress:    strOrEmpty(row.IPAddress),
		UserAgent:    row.UserAgent,
		Confidence:   row.Confidence,
		FirstSeenAt:  row.FirstSeenAt,
		LastSeenAt:   row.LastSeenAt,
	}
}

func toDomainConversion(row conversionModel) domain.Conversion {
	return domain.Conversion{
		ConversionID:           row.ConversionID,
		AccountID:              row.AccountID,
		IdentityID:             strOrEmpty(row.IdentityID),
		UserID:                 strOrEmpty(row.UserID),
		Email:                  strOrEmpty(row.Email),
		Kind:                   row.Kind,
		AmountCents:            row.AmountCents,
		Currency:               row.Currency,
		OccurredAt:             row.OccurredAt,
		AttributionState:       row.AttributionState,
		AttributedTouchpointID: strOrEmpty(row.AttributedTouchpointID),
		AttributionMethod:      strOrEmpty(row.AttributionMethod),
		Confidence:             row.Confidence,
	}
}

func toDomainRevenueAttribution(row revenueAttributionModel) domain.RevenueAttribution {
	var path []domain.PathStep
	if row.Path != "" {
		_ = json.Unmarshal([]byte(row.Path), &path)
	}
	return domain.RevenueAttribution{
		AttributionID:    row.AttributionID,
		ConversionID:     row.ConversionID,
		AccountID:        row.AccountID,
		Model:            row.Model,
		TouchpointID:     strOrEmpty(row.TouchpointID),
		Channel:          row.Channel,
		AmountCents:      row.AmountCents,
		Currency:         row.Currency,
		Path:             path,
		DaysToConversion: row.DaysToConversion,
		CreatedAt:        row.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

func notFoundAs(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func mapNotFound(err error) error {
	return notFoundAs(err, domain.ErrNotFound)
}
