package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OddsSnapshot is a point-in-time copy of a market's pricing. Append-only.
type OddsSnapshot struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_snapshots_market_time" json:"market_id"`
	Probabilities datatypes.JSON  `json:"probabilities"` // outcome id -> implied probability
	TotalPool     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_pool"`
	TotalBets     int64           `gorm:"not null" json:"total_bets"`
	UniqueBettors int64           `gorm:"not null" json:"unique_bettors"`
	RecordedAt    time.Time       `gorm:"not null;index;index:idx_snapshots_market_time" json:"recorded_at"`
}

// TableName specifies the table name for OddsSnapshot model
func (OddsSnapshot) TableName() string {
	return "odds_snapshots"
}

// SetDistribution stores the per-outcome probabilities
func (s *OddsSnapshot) SetDistribution(dist map[uuid.UUID]float64) error {
	raw := make(map[string]float64, len(dist))
	for id, p := range dist {
		raw[id.String()] = p
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	s.Probabilities = datatypes.JSON(b)
	return nil
}

// Distribution decodes the per-outcome probabilities
func (s *OddsSnapshot) Distribution() (map[uuid.UUID]float64, error) {
	raw := map[string]float64{}
	if len(s.Probabilities) > 0 {
		if err := json.Unmarshal(s.Probabilities, &raw); err != nil {
			return nil, err
		}
	}
	out := make(map[uuid.UUID]float64, len(raw))
	for k, p := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}
