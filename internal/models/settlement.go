package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketSettlement is the persisted outcome of resolving one market
type MarketSettlement struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"market_id"`
	WinningOutcomeID uuid.UUID       `gorm:"type:uuid;not null" json:"winning_outcome_id"`
	TotalPool        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_pool"`
	WinnerPool       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"winner_pool"`
	TreasuryCut      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"treasury_cut"`
	OpsCut           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"ops_cut"`
	TotalBasePaid    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_base_paid"`
	StreakBonus      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"streak_bonus"`
	TotalPaid        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_paid"`
	Unallocated      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unallocated"`
	BetsSettled      int64           `gorm:"not null" json:"bets_settled"`
	WinningBets      int64           `gorm:"not null" json:"winning_bets"`
	LosingBets       int64           `gorm:"not null" json:"losing_bets"`
	NoWinningStake   bool            `gorm:"not null;default:false" json:"no_winning_stake"`
	SettledAt        time.Time       `gorm:"not null" json:"settled_at"`
}

// TableName specifies the table name for MarketSettlement model
func (MarketSettlement) TableName() string {
	return "market_settlements"
}

// TreasuryNet is the treasury cut after funding streak bonuses
func (s *MarketSettlement) TreasuryNet() decimal.Decimal {
	return s.TreasuryCut.Sub(s.StreakBonus)
}
