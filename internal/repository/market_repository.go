package repository

import (
	"context"
	"fmt"
	"time"

	"parimutuel-market/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func preloadOutcomes(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// CreateMarket inserts a market together with its outcomes
func (r *Repository) CreateMarket(ctx context.Context, market *models.Market) error {
	return r.db.WithContext(ctx).Create(market).Error
}

// GetMarket retrieves a market with its outcomes in display order
func (r *Repository) GetMarket(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	var market models.Market
	err := r.db.WithContext(ctx).
		Preload("Outcomes", preloadOutcomes).
		Where("id = ?", marketID).
		First(&market).Error
	if err != nil {
		return nil, err
	}
	return &market, nil
}

// GetMarketForUpdate retrieves a market and takes a row lock on it for the
// rest of the enclosing transaction
func (r *Repository) GetMarketForUpdate(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	var market models.Market
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", marketID).
		First(&market).Error
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("position ASC").
		Find(&market.Outcomes).Error; err != nil {
		return nil, err
	}
	return &market, nil
}

// ListMarkets retrieves markets, newest first, optionally filtered by status
func (r *Repository) ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]models.Market, error) {
	query := r.db.WithContext(ctx).Preload("Outcomes", preloadOutcomes)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var markets []models.Market
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&markets).Error; err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	return markets, nil
}

// ListOpenMarketIDs returns the ids of markets that are still open at now:
// status OPEN and deadline not yet reached
func (r *Repository) ListOpenMarketIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("status = ? AND closes_at > ?", models.MarketStatusOpen, now).
		Order("closes_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list open markets: %w", err)
	}
	return ids, nil
}

// ListExpiredOpenMarketIDs returns OPEN markets whose deadline has passed
func (r *Repository) ListExpiredOpenMarketIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("status = ? AND closes_at <= ?", models.MarketStatusOpen, now).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired markets: %w", err)
	}
	return ids, nil
}

// UpdateMarket applies column updates to one market
func (r *Repository) UpdateMarket(ctx context.Context, marketID uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("id = ?", marketID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update market: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// UpdateOutcome applies column updates to one outcome
func (r *Repository) UpdateOutcome(ctx context.Context, outcomeID uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Outcome{}).
		Where("id = ?", outcomeID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update outcome: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// MarkWinningOutcome flags the winner and every other outcome as losing
func (r *Repository) MarkWinningOutcome(ctx context.Context, marketID, winningID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Outcome{}).
		Where("market_id = ? AND id <> ?", marketID, winningID).
		Update("is_winning", false).Error; err != nil {
		return fmt.Errorf("failed to mark losing outcomes: %w", err)
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Outcome{}).
		Where("market_id = ? AND id = ?", marketID, winningID).
		Update("is_winning", true).Error; err != nil {
		return fmt.Errorf("failed to mark winning outcome: %w", err)
	}
	return nil
}
