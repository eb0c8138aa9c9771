package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetResolution is the settled state of a bet
type BetResolution string

const (
	BetPending BetResolution = "pending"
	BetWon     BetResolution = "won"
	BetLost    BetResolution = "lost"
)

// Bet is an immutable wager record. Only settlement writes the resolution
// fields, exactly once.
type Bet struct {
	ID                     uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID               uuid.UUID        `gorm:"type:uuid;not null;index;index:idx_bets_market_bettor;uniqueIndex:idx_bets_market_sequence" json:"market_id"`
	Sequence               int64            `gorm:"not null;uniqueIndex:idx_bets_market_sequence" json:"sequence"` // placement order within the market, from 1
	OutcomeID              uuid.UUID        `gorm:"type:uuid;not null;index" json:"outcome_id"`
	BettorID               string           `gorm:"size:255;not null;index;index:idx_bets_market_bettor" json:"bettor_id"`
	Stake                  decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"stake"`
	ProbabilityAtPlacement float64          `gorm:"not null" json:"probability_at_placement"`
	OddsAtPlacement        float64          `gorm:"not null" json:"odds_at_placement"`
	PlacedAt               time.Time        `gorm:"not null;index" json:"placed_at"`
	Resolution             BetResolution    `gorm:"size:20;not null;default:pending;index" json:"resolution"`
	BasePayout             *decimal.Decimal `gorm:"type:decimal(20,2)" json:"base_payout,omitempty"`
	Payout                 *decimal.Decimal `gorm:"type:decimal(20,2)" json:"payout,omitempty"`
	StreakMultiplier       *decimal.Decimal `gorm:"type:decimal(6,2)" json:"streak_multiplier,omitempty"`
	SettledAt              *time.Time       `json:"settled_at,omitempty"`
}

// TableName specifies the table name for Bet model
func (Bet) TableName() string {
	return "bets"
}

// IsSettled reports whether the resolution fields have been written
func (b *Bet) IsSettled() bool {
	return b.Resolution != BetPending
}
