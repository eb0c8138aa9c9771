package odds

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeSchedule is the split of a resolved pool between winners, the treasury
// and operations. The three ratios always sum to exactly one.
type FeeSchedule struct {
	WinnerShare decimal.Decimal
	Treasury    decimal.Decimal
	Ops         decimal.Decimal
}

// FeeSplit is a FeeSchedule applied to a concrete pool.
type FeeSplit struct {
	WinnerPool  decimal.Decimal
	TreasuryCut decimal.Decimal
	OpsCut      decimal.Decimal
}

// DefaultFeeSchedule returns the 85 / 12.5 / 2.5 split.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		WinnerShare: decimal.RequireFromString("0.85"),
		Treasury:    decimal.RequireFromString("0.125"),
		Ops:         decimal.RequireFromString("0.025"),
	}
}

// NewFeeSchedule validates and builds a schedule.
func NewFeeSchedule(winnerShare, treasury, ops decimal.Decimal) (FeeSchedule, error) {
	fs := FeeSchedule{WinnerShare: winnerShare, Treasury: treasury, Ops: ops}
	if err := fs.Validate(); err != nil {
		return FeeSchedule{}, err
	}
	return fs, nil
}

// Validate checks that every ratio is within [0, 1] and that they sum to one.
func (fs FeeSchedule) Validate() error {
	for name, r := range map[string]decimal.Decimal{
		"winner share": fs.WinnerShare,
		"treasury":     fs.Treasury,
		"ops":          fs.Ops,
	} {
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("fee ratio %s out of range: %s", name, r)
		}
	}
	sum := fs.WinnerShare.Add(fs.Treasury).Add(fs.Ops)
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee ratios must sum to 1, got %s", sum)
	}
	return nil
}

// Split applies the schedule to totalPool. The winner pool is truncated to
// cents so it never exceeds totalPool * WinnerShare; the treasury cut is
// rounded to cents and ops takes the rest, so the parts sum to totalPool.
func (fs FeeSchedule) Split(totalPool decimal.Decimal) FeeSplit {
	winner := totalPool.Mul(fs.WinnerShare).Truncate(MoneyPlaces)
	treasury := totalPool.Mul(fs.Treasury).Round(MoneyPlaces)
	ops := totalPool.Sub(winner).Sub(treasury)
	if ops.IsNegative() {
		// treasury rounded up past a sub-cent ops share
		treasury = totalPool.Sub(winner)
		ops = decimal.Zero
	}
	return FeeSplit{
		WinnerPool:  winner,
		TreasuryCut: treasury,
		OpsCut:      ops,
	}
}
