package repository

import (
	"context"
	"fmt"
	"time"

	"parimutuel-market/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateBet persists a new bet record
func (r *Repository) CreateBet(ctx context.Context, bet *models.Bet) error {
	return r.db.WithContext(ctx).Create(bet).Error
}

// HasBettorBet reports whether the bettor already has a bet on the market
func (r *Repository) HasBettorBet(ctx context.Context, marketID uuid.UUID, bettorID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Bet{}).
		Where("market_id = ? AND bettor_id = ?", marketID, bettorID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check bettor: %w", err)
	}
	return count > 0, nil
}

// ListBetsForSettlement returns every bet of a market in placement order.
// Sequence is assigned under the market lock, so it orders bets that share a
// timestamp.
func (r *Repository) ListBetsForSettlement(ctx context.Context, marketID uuid.UUID) ([]models.Bet, error) {
	var bets []models.Bet
	if err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("sequence ASC").
		Find(&bets).Error; err != nil {
		return nil, fmt.Errorf("failed to load bets: %w", err)
	}
	return bets, nil
}

// ListMarketBets returns a page of a market's bets, newest first
func (r *Repository) ListMarketBets(ctx context.Context, marketID uuid.UUID, limit, offset int) ([]models.Bet, error) {
	var bets []models.Bet
	if err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("sequence DESC").
		Limit(limit).
		Offset(offset).
		Find(&bets).Error; err != nil {
		return nil, fmt.Errorf("failed to get market bets: %w", err)
	}
	return bets, nil
}

// ListBettorBets returns a page of a bettor's bets across markets, newest first
func (r *Repository) ListBettorBets(ctx context.Context, bettorID string, limit, offset int) ([]models.Bet, error) {
	var bets []models.Bet
	if err := r.db.WithContext(ctx).
		Where("bettor_id = ?", bettorID).
		Order("placed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&bets).Error; err != nil {
		return nil, fmt.Errorf("failed to get bettor bets: %w", err)
	}
	return bets, nil
}

// SettleBet writes the resolution fields of a pending bet. It returns
// ErrStaleWrite if the bet was already settled.
func (r *Repository) SettleBet(
	ctx context.Context,
	betID uuid.UUID,
	resolution models.BetResolution,
	basePayout decimal.Decimal,
	payout decimal.Decimal,
	multiplier decimal.Decimal,
	settledAt time.Time,
) error {
	result := r.db.WithContext(ctx).
		Model(&models.Bet{}).
		Where("id = ? AND resolution = ?", betID, models.BetPending).
		Updates(map[string]interface{}{
			"resolution":        resolution,
			"base_payout":       basePayout,
			"payout":            payout,
			"streak_multiplier": multiplier,
			"settled_at":        settledAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to settle bet %s: %w", betID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}
