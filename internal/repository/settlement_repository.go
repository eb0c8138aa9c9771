package repository

import (
	"context"

	"parimutuel-market/internal/models"

	"github.com/google/uuid"
)

// CreateSettlement persists a market's settlement. The unique index on
// market_id rejects a second settlement of the same market.
func (r *Repository) CreateSettlement(ctx context.Context, s *models.MarketSettlement) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSettlement retrieves the settlement of a market
func (r *Repository) GetSettlement(ctx context.Context, marketID uuid.UUID) (*models.MarketSettlement, error) {
	var s models.MarketSettlement
	if err := r.db.WithContext(ctx).Where("market_id = ?", marketID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
