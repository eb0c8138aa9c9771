package models

import "time"

// BettorStreak tracks consecutive market wins for one bettor
type BettorStreak struct {
	BettorID      string     `gorm:"size:255;primaryKey" json:"bettor_id"`
	CurrentStreak int        `gorm:"not null" json:"current_streak"`
	LongestStreak int        `gorm:"not null" json:"longest_streak"`
	TotalWins     int64      `gorm:"not null" json:"total_wins"`
	TotalLosses   int64      `gorm:"not null" json:"total_losses"`
	LastBetAt     *time.Time `json:"last_bet_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for BettorStreak model
func (BettorStreak) TableName() string {
	return "bettor_streaks"
}
