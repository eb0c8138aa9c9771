package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parimutuel-market/internal/events"
	"parimutuel-market/internal/models"
	"parimutuel-market/internal/odds"
)

// scenarioMarket places Bet(A,100), Bet(B,50), Bet(A,50) and closes the market
func scenarioMarket(t *testing.T, env *testEnv) *models.Market {
	t.Helper()
	m := env.createMarket(t)
	env.bet(t, m, 0, "alice", "100")
	env.clock.Advance(time.Second)
	env.bet(t, m, 1, "bob", "50")
	env.clock.Advance(time.Second)
	env.bet(t, m, 0, "carol", "50")
	require.NoError(t, env.ledger.CloseMarket(context.Background(), m.ID))
	return m
}

func payoutsByBettor(t *testing.T, env *testEnv, marketID uuid.UUID) map[string]models.Bet {
	out := map[string]models.Bet{}
	for _, b := range env.betsOf(t, marketID) {
		out[b.BettorID] = b
	}
	return out
}

func TestResolveScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := scenarioMarket(t, env)

	report, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.NoError(t, err)

	assertDecimal(t, "200", report.TotalPool)
	assertDecimal(t, "170", report.WinnerPool)
	assertDecimal(t, "25", report.TreasuryCut)
	assertDecimal(t, "5", report.OpsCut)
	assertDecimal(t, "170", report.TotalBasePaid)
	assertDecimal(t, "170", report.TotalPaid)
	assertDecimal(t, "0", report.StreakBonus)
	assertDecimal(t, "25", report.TreasuryNet)
	assert.Equal(t, int64(3), report.BetsSettled)
	assert.Equal(t, int64(2), report.WinningBets)
	assert.Equal(t, int64(1), report.LosingBets)
	assert.False(t, report.NoWinningStake)
	require.Len(t, report.OutcomeStakes, 2)
	assert.True(t, report.OutcomeStakes[0].IsWinning)
	assertDecimal(t, "150", report.OutcomeStakes[0].TotalStake)
	assert.False(t, report.OutcomeStakes[1].IsWinning)

	bets := payoutsByBettor(t, env, m.ID)
	require.NotNil(t, bets["alice"].Payout)
	assertDecimal(t, "113.33", *bets["alice"].Payout)
	assertDecimal(t, "56.67", *bets["carol"].Payout)
	assertDecimal(t, "0", *bets["bob"].Payout)
	assert.Equal(t, models.BetWon, bets["alice"].Resolution)
	assert.Equal(t, models.BetLost, bets["bob"].Resolution)
	assertDecimal(t, "1", *bets["alice"].StreakMultiplier)
	assert.Equal(t, 2.0, bets["alice"].OddsAtPlacement)

	loaded := env.reloadMarket(t, m.ID)
	assert.Equal(t, models.MarketStatusResolved, loaded.Status)
	require.NotNil(t, loaded.WinningOutcomeID)
	assert.Equal(t, m.Outcomes[0].ID, *loaded.WinningOutcomeID)
	require.NotNil(t, loaded.Outcomes[0].IsWinning)
	assert.True(t, *loaded.Outcomes[0].IsWinning)
	require.NotNil(t, loaded.Outcomes[1].IsWinning)
	assert.False(t, *loaded.Outcomes[1].IsWinning)

	alice, err := env.ledger.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.CurrentStreak)
	assert.Equal(t, int64(1), alice.TotalWins)
	bob, err := env.ledger.GetStreak(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, bob.CurrentStreak)
	assert.Equal(t, int64(1), bob.TotalLosses)

	resolved := env.events.OfType(events.MarketResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, m.ID, resolved[0].MarketID)
}

func TestResolveTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := scenarioMarket(t, env)

	_, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.NoError(t, err)
	before := payoutsByBettor(t, env, m.ID)

	_, err = env.settlement.Resolve(ctx, m.ID, m.Outcomes[1].ID)
	assert.ErrorIs(t, err, ErrMarketAlreadyResolved)
	assert.True(t, IsConflict(err))

	after := payoutsByBettor(t, env, m.ID)
	for bettor, b := range before {
		assert.True(t, b.Payout.Equal(*after[bettor].Payout), bettor)
		assert.Equal(t, b.Resolution, after[bettor].Resolution)
	}
	assert.Len(t, env.events.OfType(events.MarketResolved), 1)
}

func TestConcurrentResolveSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := scenarioMarket(t, env)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrMarketAlreadyResolved)
	}
	assert.Equal(t, 1, ok)
}

func TestResolveRequiresClosedMarket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)
	env.bet(t, m, 0, "alice", "10")

	_, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	assert.ErrorIs(t, err, ErrMarketNotClosed)
	assert.Equal(t, models.BetPending, env.betsOf(t, m.ID)[0].Resolution)

	// past the deadline the close is applied inside the resolve
	env.clock.Advance(time.Hour)
	_, err = env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.NoError(t, err)
	assert.Len(t, env.events.OfType(events.MarketClosed), 1)
	assert.Equal(t, models.MarketStatusResolved, env.reloadMarket(t, m.ID).Status)
}

func TestResolveErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.settlement.Resolve(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrMarketNotFound)

	empty := env.createMarket(t)
	require.NoError(t, env.ledger.CloseMarket(ctx, empty.ID))
	_, err = env.settlement.Resolve(ctx, empty.ID, empty.Outcomes[0].ID)
	assert.ErrorIs(t, err, ErrNoBetsPlaced)
	assert.Equal(t, models.MarketStatusClosed, env.reloadMarket(t, empty.ID).Status)

	m := scenarioMarket(t, env)
	_, err = env.settlement.Resolve(ctx, m.ID, uuid.New())
	assert.ErrorIs(t, err, ErrOutcomeNotFound)
}

func TestResolveNoWinningStake(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)
	env.bet(t, m, 0, "alice", "100")
	env.bet(t, m, 0, "bob", "50")
	require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))

	report, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[1].ID)
	require.NoError(t, err)
	assert.True(t, report.NoWinningStake)
	assertDecimal(t, "127.5", report.WinnerPool)
	assertDecimal(t, "127.5", report.Unallocated)
	assertDecimal(t, "0", report.TotalPaid)
	assert.Equal(t, int64(0), report.WinningBets)
	assert.Equal(t, int64(2), report.LosingBets)

	for _, b := range env.betsOf(t, m.ID) {
		assert.Equal(t, models.BetLost, b.Resolution)
		assertDecimal(t, "0", *b.Payout)
	}
	assert.Equal(t, models.MarketStatusResolved, env.reloadMarket(t, m.ID).Status)
}

func TestResolveAppliesStreakMultiplier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	last := env.clock.Now().Add(-time.Hour)
	require.NoError(t, env.repo.SaveStreak(ctx, &models.BettorStreak{
		BettorID:      "alice",
		CurrentStreak: 3,
		LongestStreak: 3,
		TotalWins:     3,
		LastBetAt:     &last,
	}))

	m := env.createMarket(t)
	env.bet(t, m, 0, "alice", "100")
	env.bet(t, m, 1, "bob", "50")
	require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))

	report, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.NoError(t, err)

	// winner pool 127.50 at x1.1; the bonus comes out of the treasury cut
	assertDecimal(t, "127.5", report.TotalBasePaid)
	assertDecimal(t, "140.25", report.TotalPaid)
	assertDecimal(t, "12.75", report.StreakBonus)
	assertDecimal(t, "18.75", report.TreasuryCut)
	assertDecimal(t, "6", report.TreasuryNet)

	bets := payoutsByBettor(t, env, m.ID)
	assertDecimal(t, "127.5", *bets["alice"].BasePayout)
	assertDecimal(t, "140.25", *bets["alice"].Payout)
	assertDecimal(t, "1.1", *bets["alice"].StreakMultiplier)

	alice, err := env.ledger.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, alice.CurrentStreak)
	assert.Equal(t, 4, alice.LongestStreak)
	assert.Equal(t, int64(4), alice.TotalWins)
}

func TestStreakDecayAcrossMarkets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	play := func() {
		m := env.createMarket(t)
		env.bet(t, m, 0, "alice", "20")
		env.bet(t, m, 1, "bob", "20")
		require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))
		_, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
		require.NoError(t, err)
	}

	play()
	env.clock.Advance(2 * time.Hour)
	play()
	alice, err := env.ledger.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, alice.CurrentStreak)

	env.clock.Advance(25 * time.Hour)
	play()
	alice, err = env.ledger.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.CurrentStreak)
	assert.Equal(t, 2, alice.LongestStreak)
	assert.Equal(t, int64(3), alice.TotalWins)

	bob, err := env.ledger.GetStreak(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, bob.CurrentStreak)
	assert.Equal(t, int64(3), bob.TotalLosses)
}

func TestResolveRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := scenarioMarket(t, env)

	// a stray settlement row makes the final insert hit the unique index
	require.NoError(t, env.repo.CreateSettlement(ctx, &models.MarketSettlement{
		ID:               uuid.New(),
		MarketID:         m.ID,
		WinningOutcomeID: m.Outcomes[1].ID,
		SettledAt:        env.clock.Now(),
	}))

	_, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.Error(t, err)

	loaded := env.reloadMarket(t, m.ID)
	assert.Equal(t, models.MarketStatusClosed, loaded.Status)
	assert.Nil(t, loaded.WinningOutcomeID)
	for _, o := range loaded.Outcomes {
		assert.Nil(t, o.IsWinning)
	}
	for _, b := range env.betsOf(t, m.ID) {
		assert.Equal(t, models.BetPending, b.Resolution)
		assert.Nil(t, b.Payout)
	}
	alice, err := env.ledger.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, alice.CurrentStreak)
	assert.Nil(t, alice.LastBetAt)
	assert.Empty(t, env.events.OfType(events.MarketResolved))
}

func TestSettlementConservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t, "A", "B", "C")

	stakes := []string{"10", "13.37", "41.10", "99.99", "10.01", "27", "33.33", "12.34", "58.76", "10"}
	for i, s := range stakes {
		env.bet(t, m, i%3, fmt.Sprintf("b%d", i), s)
		env.clock.Advance(time.Second)
	}
	require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))

	report, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[1].ID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, b := range env.betsOf(t, m.ID) {
		if b.Resolution == models.BetWon {
			sum = sum.Add(*b.BasePayout)
		}
	}
	assert.True(t, sum.Equal(report.WinnerPool), "sum %s winner pool %s", sum, report.WinnerPool)
	assert.True(t, report.WinnerPool.Add(report.TreasuryCut).Add(report.OpsCut).Equal(report.TotalPool))
	share := report.TotalPool.Mul(odds.DefaultFeeSchedule().WinnerShare)
	assert.True(t, sum.LessThanOrEqual(share), "paid %s share %s", sum, share)
}

func TestSettlementNeverPaysAboveWinnerShare(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)

	// 85% of 10.03 is 8.5255: a half-up rounding would pay 8.53
	env.bet(t, m, 0, "alice", "10.03")
	require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))

	report, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.NoError(t, err)

	share := dec("10.03").Mul(odds.DefaultFeeSchedule().WinnerShare)
	assertDecimal(t, "8.52", report.WinnerPool)
	assertDecimal(t, "8.52", report.TotalPaid)
	assert.True(t, report.TotalPaid.LessThanOrEqual(share), "paid %s share %s", report.TotalPaid, share)
	assert.True(t, report.WinnerPool.Add(report.TreasuryCut).Add(report.OpsCut).Equal(report.TotalPool))

	bet := payoutsByBettor(t, env, m.ID)["alice"]
	require.NotNil(t, bet.Payout)
	assert.True(t, bet.Payout.LessThanOrEqual(share))
}

func TestLeftoverCentGoesToEarliestBetOnTimestampTie(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)

	// every bet shares one timestamp; winner pool 34.00 over three equal
	// stakes leaves one cent after 11.33 each
	first := env.bet(t, m, 0, "zed", "10")
	second := env.bet(t, m, 0, "amy", "10")
	third := env.bet(t, m, 0, "mia", "10")
	env.bet(t, m, 1, "bob", "10")
	assert.Equal(t, []int64{1, 2, 3}, []int64{first.Sequence, second.Sequence, third.Sequence})
	require.True(t, first.PlacedAt.Equal(third.PlacedAt))
	require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))

	report, err := env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.NoError(t, err)
	assertDecimal(t, "34", report.WinnerPool)

	bets := payoutsByBettor(t, env, m.ID)
	assertDecimal(t, "11.34", *bets["zed"].BasePayout)
	assertDecimal(t, "11.33", *bets["amy"].BasePayout)
	assertDecimal(t, "11.33", *bets["mia"].BasePayout)
	assertDecimal(t, "34", report.TotalBasePaid)
}

func TestGetSettlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := scenarioMarket(t, env)

	_, err := env.settlement.GetSettlement(ctx, m.ID)
	assert.ErrorIs(t, err, ErrSettlementNotFound)
	_, err = env.settlement.GetSettlement(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrMarketNotFound)

	_, err = env.settlement.Resolve(ctx, m.ID, m.Outcomes[0].ID)
	require.NoError(t, err)

	report, err := env.settlement.GetSettlement(ctx, m.ID)
	require.NoError(t, err)
	assertDecimal(t, "170", report.TotalPaid)
	assert.Equal(t, m.Outcomes[0].ID, report.WinningOutcomeID)
	require.Len(t, report.OutcomeStakes, 2)
	assert.True(t, report.OutcomeStakes[0].IsWinning)
}
