package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"parimutuel-market/internal/streak"
)

// ---- Request DTOs ----

// CreateMarketRequest is the request body for publishing a new market
type CreateMarketRequest struct {
	ChapterID string           `json:"chapter_id" binding:"required"`
	Title     string           `json:"title" binding:"required"`
	Outcomes  []string         `json:"outcomes" binding:"required,min=2,dive,required"`
	OpensAt   *time.Time       `json:"opens_at"`
	ClosesAt  time.Time        `json:"closes_at" binding:"required"`
	MinBet    decimal.Decimal  `json:"min_bet"`
	MaxBet    *decimal.Decimal `json:"max_bet"`
}

// PlaceBetRequest is the request body for placing a wager
type PlaceBetRequest struct {
	OutcomeID string          `json:"outcome_id" binding:"required,uuid"`
	Stake     decimal.Decimal `json:"stake"`
}

// ResolveMarketRequest is the request body for settling a market
type ResolveMarketRequest struct {
	WinningOutcomeID string `json:"winning_outcome_id" binding:"required,uuid"`
}

// ---- Response DTOs ----

// OutcomeOdds is the live pricing of one outcome
type OutcomeOdds struct {
	OutcomeID   uuid.UUID       `json:"outcome_id"`
	Label       string          `json:"label"`
	Position    int             `json:"position"`
	TotalStake  decimal.Decimal `json:"total_stake"`
	BetCount    int64           `json:"bet_count"`
	Probability float64         `json:"probability"`
	DecimalOdds float64         `json:"decimal_odds"`
}

// MarketOdds is the live pricing of a whole market
type MarketOdds struct {
	MarketID      uuid.UUID       `json:"market_id"`
	Status        MarketStatus    `json:"status"`
	TotalPool     decimal.Decimal `json:"total_pool"`
	TotalBets     int64           `json:"total_bets"`
	UniqueBettors int64           `json:"unique_bettors"`
	Outcomes      []OutcomeOdds   `json:"outcomes"`
	AsOf          time.Time       `json:"as_of"`
}

// PlaceBetResult is the committed bet together with the post-bet odds
type PlaceBetResult struct {
	Bet  *Bet       `json:"bet"`
	Odds MarketOdds `json:"odds"`
}

// QuoteResponse prices a hypothetical bet against the current pool
type QuoteResponse struct {
	MarketID        uuid.UUID       `json:"market_id"`
	OutcomeID       uuid.UUID       `json:"outcome_id"`
	Stake           decimal.Decimal `json:"stake"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Probability     float64         `json:"probability"`
	DecimalOdds     float64         `json:"decimal_odds"`
}

// OutcomeStake is the final stake of one outcome in a settlement report
type OutcomeStake struct {
	OutcomeID  uuid.UUID       `json:"outcome_id"`
	Label      string          `json:"label"`
	TotalStake decimal.Decimal `json:"total_stake"`
	BetCount   int64           `json:"bet_count"`
	IsWinning  bool            `json:"is_winning"`
}

// SettlementReport is returned by Resolve and by settlement lookups
type SettlementReport struct {
	MarketSettlement
	TreasuryNet   decimal.Decimal `json:"treasury_net"`
	OutcomeStakes []OutcomeStake  `json:"outcome_stakes"`
}

// Trend is the direction of the leading outcome over the look-back window
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Consensus is the crowd view of a market
type Consensus struct {
	MarketID        uuid.UUID     `json:"market_id"`
	LeadingOutcome  *OutcomeOdds  `json:"leading_outcome"`
	ConfidenceLevel float64       `json:"confidence_level"`
	Distribution    []OutcomeOdds `json:"odds_distribution"`
	Trend           Trend         `json:"trend"`
	TrendDelta      float64       `json:"trend_delta"`
	HasHistory      bool          `json:"has_history"`
	AsOf            time.Time     `json:"as_of"`
}

// StreakView is a bettor's streak with the multiplier it currently earns
type StreakView struct {
	BettorStreak
	Multiplier    decimal.Decimal   `json:"multiplier"`
	NextMilestone *streak.Milestone `json:"next_milestone,omitempty"`
}
