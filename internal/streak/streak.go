// Package streak maps consecutive-win counts to payout multipliers and
// applies the streak transition rule after a market is settled.
package streak

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecayWindow is the longest gap between bets that still continues a streak.
const DecayWindow = 24 * time.Hour

// Tier is one row of the multiplier table. A tier covers streaks from
// MinStreak up to the next tier's MinStreak - 1.
type Tier struct {
	MinStreak  int             `json:"min_streak"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

var tiers = []Tier{
	{MinStreak: 0, Multiplier: decimal.RequireFromString("1.0")},
	{MinStreak: 3, Multiplier: decimal.RequireFromString("1.1")},
	{MinStreak: 5, Multiplier: decimal.RequireFromString("1.2")},
	{MinStreak: 8, Multiplier: decimal.RequireFromString("1.3")},
	{MinStreak: 13, Multiplier: decimal.RequireFromString("1.5")},
	{MinStreak: 21, Multiplier: decimal.RequireFromString("2.0")},
}

// Tiers returns a copy of the multiplier table, lowest tier first.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

func tierIndex(streak int) int {
	idx := 0
	for i, t := range tiers {
		if streak >= t.MinStreak {
			idx = i
		}
	}
	return idx
}

// MultiplierFor returns the payout multiplier for a consecutive-win count.
func MultiplierFor(streak int) decimal.Decimal {
	return tiers[tierIndex(streak)].Multiplier
}

// Milestone describes the next tier a bettor can reach.
type Milestone struct {
	WinsNeeded int             `json:"wins_needed"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Progress   float64         `json:"progress"`
}

// NextMilestone reports how far the bettor is from the next tier. Progress is
// the linear position between the current tier floor and the next one. The
// second return is false at the top tier.
func NextMilestone(streak int) (Milestone, bool) {
	if streak < 0 {
		streak = 0
	}
	idx := tierIndex(streak)
	if idx == len(tiers)-1 {
		return Milestone{}, false
	}
	floor := tiers[idx].MinStreak
	next := tiers[idx+1]
	return Milestone{
		WinsNeeded: next.MinStreak - streak,
		Multiplier: next.Multiplier,
		Progress:   float64(streak-floor) / float64(next.MinStreak-floor),
	}, true
}

// State is the per-bettor streak record.
type State struct {
	Current   int
	Longest   int
	LastBetAt *time.Time
}

// Advance applies one settled result. A loss resets the streak to 0. A win
// increments it, unless the bet came more than DecayWindow after the previous
// one, in which case the streak restarts at 1.
func Advance(s State, won bool, betAt time.Time) State {
	next := s
	switch {
	case !won:
		next.Current = 0
	case s.LastBetAt != nil && betAt.Sub(*s.LastBetAt) > DecayWindow:
		next.Current = 1
	default:
		next.Current = s.Current + 1
	}
	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	if s.LastBetAt == nil || betAt.After(*s.LastBetAt) {
		at := betAt
		next.LastBetAt = &at
	}
	return next
}
