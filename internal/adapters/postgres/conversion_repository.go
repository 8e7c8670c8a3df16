package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

type conversionRepository struct {
	db *gorm.DB
}

func (r *conversionRepository) Create(ctx context.Context, conv domain.Conversion) error {
	now := time.Now().UTC()
	rec := conversionModel{
		ConversionID:     conv.ConversionID,
		AccountID:        conv.AccountID,
		IdentityID:       strPtr(conv.IdentityID),
		UserID:           strPtr(conv.UserID),
		Email:            strPtr(conv.Email),
		Kind:             conv.Kind,
		AmountCents:      conv.AmountCents,
		Currency:         conv.Currency,
		OccurredAt:       conv.OccurredAt,
		AttributionState: conv.AttributionState,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *conversionRepository) GetByID(ctx context.Context, conversionID string) (domain.Conversion, error) {
	var rec conversionModel
	if err := r.db.WithContext(ctx).Where("conversion_id = ?", conversionID).Take(&rec).Error; err != nil {
		return domain.Conversion{}, mapNotFound(err)
	}
	return toDomainConversion(rec), nil
}

// ApplyAttribution fills attribution fields only while the conversion is
// still pending. First resolution wins; a second resolver run is a no-op
// reported as ErrAlreadyAttributed.
func (r *conversionRepository) ApplyAttribution(ctx context.Context, conversionID string, update ports.ConversionAttributionUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&conversionModel{}).
		Where("conversion_id = ?", conversionID).
		Where("attribution_state = ?", domain.AttributionStatePending).
		Updates(map[string]any{
			"attributed_touchpoint_id": strPtr(update.TouchpointID),
			"attribution_method":       strPtr(update.Method),
			"confidence":               update.Confidence,
			"attribution_state":        update.State,
			"resolved_at":              update.ResolvedAt,
			"updated_at":               update.ResolvedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&conversionModel{}).
			Where("conversion_id = ?", conversionID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyAttributed
	}
	return nil
}

func (r *conversionRepository) SetState(ctx context.Context, conversionID, state string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversionModel{}).
		Where("conversion_id = ?", conversionID).
		Updates(map[string]any{
			"attribution_state": state,
			"updated_at":        at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *conversionRepository) ListByState(ctx context.Context, state string, limit int) ([]domain.Conversion, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []conversionModel
	if err := r.db.WithContext(ctx).
		Where("attribution_state = ?", state).
		Order("occurred_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Conversion, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainConversion(row))
	}
	return out, nil
}
