package postgres

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

type attributionRepository struct {
	db *gorm.DB
}

// Append inserts one credited revenue row. The write is keyed on the
// deterministic write key, so replays from a reconciliation pass land on the
// existing row and are silently dropped.
func (r *attributionRepository) Append(ctx context.Context, row domain.RevenueAttribution) error {
	pathJSON := "[]"
	if len(row.Path) > 0 {
		raw, err := json.Marshal(row.Path)
		if err != nil {
			return err
		}
		pathJSON = string(raw)
	}
	rec := revenueAttributionModel{
		AttributionID:    row.AttributionID,
		WriteKey:         row.WriteKey(),
		ConversionID:     row.ConversionID,
		AccountID:        row.AccountID,
		Model:            row.Model,
		TouchpointID:     strPtr(row.TouchpointID),
		Channel:          row.Channel,
		AmountCents:      row.AmountCents,
		Currency:         row.Currency,
		Path:             pathJSON,
		DaysToConversion: row.DaysToConversion,
		CreatedAt:        row.CreatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "write_key"}},
			DoNothing: true,
		}).
		Create(&rec).Error
}

func (r *attributionRepository) ListByConversion(ctx context.Context, conversionID string) ([]domain.RevenueAttribution, error) {
	var rows []revenueAttributionModel
	if err := r.db.WithContext(ctx).
		Where("conversion_id = ?", conversionID).
		Order("model ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RevenueAttribution, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRevenueAttribution(row))
	}
	return out, nil
}

func (r *attributionRepository) SumByChannel(ctx context.Context, accountID, model string, since, until time.Time) ([]ports.ChannelRevenue, error) {
	var rows []struct {
		Channel     string
		Model       string
		AmountCents int64
		Conversions int
	}
	err := r.db.WithContext(ctx).
		Model(&revenueAttributionModel{}).
		Select("channel, model, SUM(amount_cents) AS amount_cents, COUNT(DISTINCT conversion_id) AS conversions").
		Where("account_id = ? AND model = ?", accountID, model).
		Where("created_at >= ? AND created_at < ?", since, until).
		Group("channel, model").
		Order("SUM(amount_cents) DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ports.ChannelRevenue, 0, len(rows))
	for _, row := range rows {
		out = append(out, ports.ChannelRevenue{
			Channel:     row.Channel,
			Model:       row.Model,
			AmountCents: row.AmountCents,
			Conversions: row.Conversions,
		})
	}
	return out, nil
}
