package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketStatus is the lifecycle state of a betting pool
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "OPEN"
	MarketStatusClosed   MarketStatus = "CLOSED"
	MarketStatusResolved MarketStatus = "RESOLVED"
)

// Market is one parimutuel pool tied to a single chapter choice
type Market struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterID        string           `gorm:"size:255;not null;index" json:"chapter_id"`
	Title            string           `gorm:"size:500;not null" json:"title"`
	Status           MarketStatus     `gorm:"size:20;not null;default:OPEN;index" json:"status"`
	OpensAt          time.Time        `gorm:"not null" json:"opens_at"`
	ClosesAt         time.Time        `gorm:"not null;index" json:"closes_at"`
	MinBet           decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"min_bet"`
	MaxBet           *decimal.Decimal `gorm:"type:decimal(20,2)" json:"max_bet,omitempty"`
	TotalPool        decimal.Decimal  `gorm:"type:decimal(20,2);not null;default:0" json:"total_pool"`
	TotalBets        int64            `gorm:"not null;default:0" json:"total_bets"`
	UniqueBettors    int64            `gorm:"not null;default:0" json:"unique_bettors"`
	WinningOutcomeID *uuid.UUID       `gorm:"type:uuid" json:"winning_outcome_id,omitempty"`
	Outcomes         []Outcome        `gorm:"foreignKey:MarketID" json:"outcomes,omitempty"`
	ClosedAt         *time.Time       `json:"closed_at,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName specifies the table name for Market model
func (Market) TableName() string {
	return "markets"
}

// EffectiveStatus folds the close deadline into the stored status. A market
// whose status flag still says OPEN is closed once now reaches ClosesAt.
func (m *Market) EffectiveStatus(now time.Time) MarketStatus {
	if m.Status == MarketStatusOpen && !now.Before(m.ClosesAt) {
		return MarketStatusClosed
	}
	return m.Status
}

// AcceptsBets reports whether a bet placed at now may enter the pool.
func (m *Market) AcceptsBets(now time.Time) bool {
	return m.Status == MarketStatusOpen && !now.Before(m.OpensAt) && now.Before(m.ClosesAt)
}

// Outcome looks up one of the market's outcomes by id.
func (m *Market) Outcome(id uuid.UUID) (*Outcome, bool) {
	for i := range m.Outcomes {
		if m.Outcomes[i].ID == id {
			return &m.Outcomes[i], true
		}
	}
	return nil, false
}

// StakeSum adds up the outcome stakes; it always equals TotalPool.
func (m *Market) StakeSum() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range m.Outcomes {
		sum = sum.Add(o.TotalStake)
	}
	return sum
}

// Outcome is one selectable branch within a market
type Outcome struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"market_id"`
	Position   int             `gorm:"not null" json:"position"`
	Label      string          `gorm:"size:500;not null" json:"label"`
	TotalStake decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_stake"`
	BetCount   int64           `gorm:"not null;default:0" json:"bet_count"`
	IsWinning  *bool           `json:"is_winning,omitempty"`
}

// TableName specifies the table name for Outcome model
func (Outcome) TableName() string {
	return "outcomes"
}
