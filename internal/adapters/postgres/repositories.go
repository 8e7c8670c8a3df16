package postgres

import (
	"gorm.io/gorm"

	"github.com/allumi/attribution-service/internal/ports"
)

type Repositories struct {
	Touchpoints  ports.TouchpointRepository
	Identities   ports.IdentityRepository
	Conversions  ports.ConversionRepository
	Attributions ports.RevenueAttributionRepository
	Idempotency  ports.IdempotencyRepository
	Outbox       ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Touchpoints:  &touchpointRepository{db: db},
		Identities:   &identityRepository{db: db},
		Conversions:  &conversionRepository{db: db},
		Attributions: &attributionRepository{db: db},
		Idempotency:  &idempotencyRepository{db: db},
		Outbox:       &outboxRepository{db: db},
	}
}
