package postgres

import (
	"context"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

type identityRepository struct {
	db *gorm.DB
}

func (r *identityRepository) Create(ctx context.Context, identity domain.Identity) error {
	rec := identityModel{
		IdentityID:   identity.IdentityID,
		AccountID:    identity.AccountID,
		Emails:       pq.StringArray(identity.Emails),
		Phones:       pq.StringArray(identity.Phones),
		Fingerprints: pq.StringArray(identity.Fingerprints),
		UserID:       strPtr(identity.UserID),
		SessionID:    strPtr(identity.SessionID),
		IPAddress:    strPtr(identity.IPAddress),
		UserAgent:    identity.UserAgent,
		Confidence:   identity.Confidence,
		FirstSeenAt:  identity.FirstSeenAt,
		LastSeenAt:   identity.LastSeenAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *identityRepository) GetByID(ctx context.Context, identityID string) (domain.Identity, error) {
	var rec identityModel
	if err := r.db.WithContext(ctx).Where("identity_id = ?", identityID).Take(&rec).Error; err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return toDomainIdentity(rec), nil
}

func (r *identityRepository) ListByAnySignal(ctx context.Context, accountID string, signals domain.IdentitySignals, limit int) ([]domain.Identity, error) {
	if limit <= 0 {
		limit = 10
	}
	query := r.db.WithContext(ctx).
		Model(&identityModel{}).
		Where("account_id = ?", accountID)

	// Any-signal match over the evidence arrays and scalar fields. Empty
	// signals contribute an always-false branch.
	query = query.Where(
		r.db.Where("? != '' AND ? = ANY(emails)", signals.Email, signals.Email).
			Or("? != '' AND ? = ANY(phones)", signals.Phone, signals.Phone).
			Or("? != '' AND ? = ANY(fingerprints)", signals.Fingerprint, signals.Fingerprint).
			Or("? != '' AND user_id = ?", signals.UserID, signals.UserID),
	)

	var rows []identityModel
	if err := query.Order("last_seen_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Identity, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainIdentity(row))
	}
	return out, nil
}

// AppendSignals unions fresh evidence into the identity with a single SQL
// statement. The array dedup happens in the database, not via
// read-modify-write in Go, so concurrent capture events cannot lose updates.
func (r *identityRepository) AppendSignals(ctx context.Context, identityID string, appendix ports.IdentitySignalAppend) (domain.Identity, error) {
	updates := map[string]any{
		"last_seen_at": appendix.SeenAt,
	}
	if len(appendix.Emails) > 0 {
		updates["emails"] = gorm.Expr(
			"(SELECT array(SELECT DISTINCT e FROM unnest(emails || ?::text[]) AS e))",
			pq.StringArray(appendix.Emails),
		)
	}
	if len(appendix.Phones) > 0 {
		updates["phones"] = gorm.Expr(
			"(SELECT array(SELECT DISTINCT p FROM unnest(phones || ?::text[]) AS p))",
			pq.StringArray(appendix.Phones),
		)
	}
	if len(appendix.Fingerprints) > 0 {
		updates["fingerprints"] = gorm.Expr(
			"(SELECT array(SELECT DISTINCT f FROM unnest(fingerprints || ?::text[]) AS f))",
			pq.StringArray(appendix.Fingerprints),
		)
	}
	if appendix.UserID != "" {
		updates["user_id"] = appendix.UserID
	}
	if appendix.SessionID != "" {
		updates["session_id"] = appendix.SessionID
	}
	if appendix.IPAddress != "" {
		updates["ip_address"] = appendix.IPAddress
	}
	if appendix.UserAgent != "" {
		updates["user_agent"] = appendix.UserAgent
	}
	if appendix.Confidence > 0 {
		updates["confidence"] = appendix.Confidence
	}

	res := r.db.WithContext(ctx).
		Model(&identityModel{}).
		Where("identity_id = ?", identityID).
		Updates(updates)
	if res.Error != nil {
		return domain.Identity{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Identity{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, identityID)
}
