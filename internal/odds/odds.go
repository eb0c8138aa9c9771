// Package odds holds the parimutuel pricing math. Everything here is pure:
// monetary amounts are decimal.Decimal, probabilities and odds are float64
// because they are display values only.
package odds

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every settled amount is kept at.
const MoneyPlaces int32 = 2

// NoOdds is returned by DecimalOdds when an outcome cannot currently be priced.
const NoOdds = 0.0

var cent = decimal.New(1, -MoneyPlaces)

// ImpliedProbability returns outcomeStake / totalPool. With an empty pool
// every outcome gets the equal-odds seed 1 / outcomeCount.
func ImpliedProbability(outcomeStake, totalPool decimal.Decimal, outcomeCount int) float64 {
	if totalPool.IsPositive() {
		p, _ := outcomeStake.Div(totalPool).Float64()
		return clamp01(p)
	}
	if outcomeCount <= 0 {
		return 0
	}
	return 1 / float64(outcomeCount)
}

// DecimalOdds converts a probability to decimal odds (1 / p).
func DecimalOdds(probability float64) float64 {
	if probability <= 0 {
		return NoOdds
	}
	return 1 / probability
}

// PotentialPayout is the bettor's pro-rata share of the winner-distributable
// part of the pool: (stake / outcomeStake) * (totalPool * winnerShareRatio).
// Returns zero when outcomeStake is not positive.
func PotentialPayout(stake, outcomeStake, totalPool, winnerShareRatio decimal.Decimal) decimal.Decimal {
	if !outcomeStake.IsPositive() {
		return decimal.Zero
	}
	return stake.Mul(totalPool.Mul(winnerShareRatio)).Div(outcomeStake).Round(MoneyPlaces)
}

// Distribution returns the implied probability of every stake, in order.
func Distribution(stakes []decimal.Decimal) []float64 {
	total := decimal.Zero
	for _, s := range stakes {
		total = total.Add(s)
	}
	out := make([]float64, len(stakes))
	for i, s := range stakes {
		out[i] = ImpliedProbability(s, total, len(stakes))
	}
	return out
}

// AllocatePayouts splits pool across stakes pro-rata, in whole cents, so that
// the results sum to pool exactly. Each share is truncated to cents and the
// leftover cents go to the largest truncation remainders; ties favour the
// lower index. pool must already be rounded to MoneyPlaces.
func AllocatePayouts(stakes []decimal.Decimal, pool decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(stakes))
	total := decimal.Zero
	for _, s := range stakes {
		total = total.Add(s)
	}
	if !total.IsPositive() || !pool.IsPositive() {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}

	type remainder struct {
		idx  int
		frac decimal.Decimal
	}
	rems := make([]remainder, len(stakes))
	allocated := decimal.Zero
	for i, s := range stakes {
		raw := s.Mul(pool).Div(total)
		floor := raw.Truncate(MoneyPlaces)
		out[i] = floor
		allocated = allocated.Add(floor)
		rems[i] = remainder{idx: i, frac: raw.Sub(floor)}
	}

	leftover := pool.Sub(allocated).Div(cent).IntPart()
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].frac.GreaterThan(rems[b].frac)
	})
	for i := int64(0); i < leftover && int(i) < len(rems); i++ {
		idx := rems[i].idx
		out[idx] = out[idx].Add(cent)
	}
	return out
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
