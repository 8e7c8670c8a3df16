package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

type touchpointRepository struct {
	db *gorm.DB
}

func (r *touchpointRepository) Append(ctx context.Context, tp domain.Touchpoint) error {
	rec := touchpointModel{
		TouchpointID: tp.TouchpointID,
		AccountID:    tp.AccountID,
		IdentityID:   strPtr(tp.IdentityID),
		UserID:       strPtr(tp.UserID),
		ShortID:      strPtr(tp.ShortID),
		UTMSource:    tp.UTM.Source,
		UTMMedium:    tp.UTM.Medium,
		UTMCampaign:  tp.UTM.Campaign,
		UTMTerm:      tp.UTM.Term,
		UTMContent:   tp.UTM.Content,
		Referrer:     tp.Referrer,
		Email:        strPtr(tp.Email),
		Fingerprint:  strPtr(tp.Fingerprint),
		IPAddress:    strPtr(tp.IPAddress),
		UserAgent:    tp.UserAgent,
		SessionID:    strPtr(tp.SessionID),
		CookieID:     strPtr(tp.CookieID),
		OccurredAt:   tp.OccurredAt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *touchpointRepository) GetByID(ctx context.Context, touchpointID string) (domain.Touchpoint, error) {
	var rec touchpointModel
	if err := r.db.WithContext(ctx).Where("touchpoint_id = ?", touchpointID).Take(&rec).Error; err != nil {
		return domain.Touchpoint{}, mapNotFound(err)
	}
	return toDomainTouchpoint(rec), nil
}

// ListCandidates is the one bounded read behind the resolver. Matching is by
// identity or stored email within the window; ordering is chronological so
// the caller can reason about first/last touch without re-sorting.
func (r *touchpointRepository) ListCandidates(ctx context.Context, q ports.TouchpointQuery) ([]domain.Touchpoint, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	query := r.db.WithContext(ctx).
		Model(&touchpointModel{}).
		Where("account_id = ?", q.AccountID).
		Where("occurred_at >= ? AND occurred_at <= ?", q.Since, q.Until)

	switch {
	case q.IdentityID != "" && q.Email != "":
		query = query.Where("identity_id = ? OR email = ?", q.IdentityID, q.Email)
	case q.IdentityID != "":
		query = query.Where("identity_id = ?", q.IdentityID)
	case q.Email != "":
		query = query.Where("email = ?", q.Email)
	default:
		return nil, nil
	}

	var rows []touchpointModel
	if err := query.Order("occurred_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Touchpoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainTouchpoint(row))
	}
	return out, nil
}
