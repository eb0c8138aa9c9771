package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parimutuel-market/internal/events"
	"parimutuel-market/internal/models"
)

func TestCreateMarketValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	closes := env.clock.Now().Add(time.Hour)
	maxBet := dec("5")

	cases := map[string]models.CreateMarketRequest{
		"one outcome":       {ChapterID: "c", Title: "t", Outcomes: []string{"A"}, ClosesAt: closes, MinBet: dec("1")},
		"duplicate outcome": {ChapterID: "c", Title: "t", Outcomes: []string{"A", " a "}, ClosesAt: closes, MinBet: dec("1")},
		"blank title":       {ChapterID: "c", Title: "  ", Outcomes: []string{"A", "B"}, ClosesAt: closes, MinBet: dec("1")},
		"closes in past":    {ChapterID: "c", Title: "t", Outcomes: []string{"A", "B"}, ClosesAt: env.clock.Now().Add(-time.Minute), MinBet: dec("1")},
		"zero min bet":      {ChapterID: "c", Title: "t", Outcomes: []string{"A", "B"}, ClosesAt: closes, MinBet: dec("0")},
		"sub-cent min bet":  {ChapterID: "c", Title: "t", Outcomes: []string{"A", "B"}, ClosesAt: closes, MinBet: dec("0.001")},
		"max below min":     {ChapterID: "c", Title: "t", Outcomes: []string{"A", "B"}, ClosesAt: closes, MinBet: dec("10"), MaxBet: &maxBet},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.ledger.CreateMarket(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidMarket)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestCreateMarketKeepsOutcomeOrder(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(t, "Left", "Middle", "Right")

	loaded := env.reloadMarket(t, m.ID)
	require.Len(t, loaded.Outcomes, 3)
	assert.Equal(t, "Left", loaded.Outcomes[0].Label)
	assert.Equal(t, "Middle", loaded.Outcomes[1].Label)
	assert.Equal(t, "Right", loaded.Outcomes[2].Label)
	assert.Equal(t, models.MarketStatusOpen, loaded.Status)
	assertDecimal(t, "0", loaded.TotalPool)
}

func TestPlaceBetScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)

	first := env.bet(t, m, 0, "alice", "100")
	assert.Equal(t, 0.5, first.ProbabilityAtPlacement)
	assert.Equal(t, 2.0, first.OddsAtPlacement)
	assert.Equal(t, models.BetPending, first.Resolution)

	env.clock.Advance(time.Second)
	env.bet(t, m, 1, "bob", "50")
	env.clock.Advance(time.Second)
	res, err := env.ledger.PlaceBet(ctx, m.ID, m.Outcomes[0].ID, "carol", dec("50"))
	require.NoError(t, err)

	// odds captured before carol's stake joined: 100 / 150
	assert.InDelta(t, 2.0/3.0, res.Bet.ProbabilityAtPlacement, 1e-9)

	assertDecimal(t, "200", res.Odds.TotalPool)
	assert.Equal(t, int64(3), res.Odds.TotalBets)
	assert.Equal(t, int64(3), res.Odds.UniqueBettors)
	assert.InDelta(t, 0.75, res.Odds.Outcomes[0].Probability, 1e-9)
	assert.InDelta(t, 0.25, res.Odds.Outcomes[1].Probability, 1e-9)

	loaded := env.reloadMarket(t, m.ID)
	assertDecimal(t, "200", loaded.TotalPool)
	assertDecimal(t, "150", loaded.Outcomes[0].TotalStake)
	assertDecimal(t, "50", loaded.Outcomes[1].TotalStake)
	assert.Equal(t, int64(2), loaded.Outcomes[0].BetCount)
	assert.True(t, loaded.TotalPool.Equal(loaded.StakeSum()))

	assert.Len(t, env.events.OfType(events.BetPlaced), 3)
}

func TestPlaceBetUniqueBettors(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(t)

	env.bet(t, m, 0, "alice", "10")
	env.bet(t, m, 1, "alice", "10")
	env.bet(t, m, 0, "bob", "10")

	loaded := env.reloadMarket(t, m.ID)
	assert.Equal(t, int64(3), loaded.TotalBets)
	assert.Equal(t, int64(2), loaded.UniqueBettors)
}

func TestPlaceBetRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	maxBet := dec("100")
	m, err := env.ledger.CreateMarket(ctx, models.CreateMarketRequest{
		ChapterID: "ch-1",
		Title:     "Door or window",
		Outcomes:  []string{"Door", "Window"},
		ClosesAt:  env.clock.Now().Add(time.Hour),
		MinBet:    dec("10"),
		MaxBet:    &maxBet,
	})
	require.NoError(t, err)
	outcome := m.Outcomes[0].ID

	_, err = env.ledger.PlaceBet(ctx, uuid.New(), outcome, "alice", dec("10"))
	assert.ErrorIs(t, err, ErrMarketNotFound)

	_, err = env.ledger.PlaceBet(ctx, m.ID, uuid.New(), "alice", dec("10"))
	assert.ErrorIs(t, err, ErrOutcomeNotFound)

	_, err = env.ledger.PlaceBet(ctx, m.ID, outcome, "alice", dec("9.99"))
	assert.ErrorIs(t, err, ErrStakeBelowMinimum)

	_, err = env.ledger.PlaceBet(ctx, m.ID, outcome, "alice", dec("100.01"))
	assert.ErrorIs(t, err, ErrStakeAboveMaximum)

	_, err = env.ledger.PlaceBet(ctx, m.ID, outcome, "alice", dec("-5"))
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, err = env.ledger.PlaceBet(ctx, m.ID, outcome, "alice", dec("10.005"))
	assert.ErrorIs(t, err, ErrInvalidStake)

	_, err = env.ledger.PlaceBet(ctx, m.ID, outcome, " ", dec("10"))
	assert.ErrorIs(t, err, ErrInvalidBettor)

	// nothing leaked into the pool
	loaded := env.reloadMarket(t, m.ID)
	assertDecimal(t, "0", loaded.TotalPool)
	assert.Equal(t, int64(0), loaded.TotalBets)
	assert.Empty(t, env.betsOf(t, m.ID))
}

func TestPlaceBetBeforeOpening(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opens := env.clock.Now().Add(time.Hour)
	m, err := env.ledger.CreateMarket(ctx, models.CreateMarketRequest{
		ChapterID: "ch-2",
		Title:     "Later",
		Outcomes:  []string{"A", "B"},
		OpensAt:   &opens,
		ClosesAt:  opens.Add(time.Hour),
		MinBet:    dec("1"),
	})
	require.NoError(t, err)

	_, err = env.ledger.PlaceBet(ctx, m.ID, m.Outcomes[0].ID, "alice", dec("5"))
	assert.ErrorIs(t, err, ErrMarketNotOpen)
	assert.True(t, IsConflict(err))

	env.clock.Advance(time.Hour)
	_, err = env.ledger.PlaceBet(ctx, m.ID, m.Outcomes[0].ID, "alice", dec("5"))
	assert.NoError(t, err)
}

func TestPlaceBetAfterDeadlineClosesMarket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)

	env.clock.Advance(time.Hour)
	_, err := env.ledger.PlaceBet(ctx, m.ID, m.Outcomes[0].ID, "alice", dec("10"))
	assert.ErrorIs(t, err, ErrMarketClosed)

	loaded := env.reloadMarket(t, m.ID)
	assert.Equal(t, models.MarketStatusClosed, loaded.Status)
	require.NotNil(t, loaded.ClosedAt)
	assert.Len(t, env.events.OfType(events.MarketClosed), 1)

	// once the flag is flipped the status check rejects first
	_, err = env.ledger.PlaceBet(ctx, m.ID, m.Outcomes[0].ID, "alice", dec("10"))
	assert.ErrorIs(t, err, ErrMarketNotOpen)
}

func TestCloseMarketIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)

	require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))
	require.NoError(t, env.ledger.CloseMarket(ctx, m.ID))
	assert.Len(t, env.events.OfType(events.MarketClosed), 1)
	assert.Equal(t, models.MarketStatusClosed, env.reloadMarket(t, m.ID).Status)

	assert.ErrorIs(t, env.ledger.CloseMarket(ctx, uuid.New()), ErrMarketNotFound)
}

func TestGetMarketEnforcesDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)

	got, err := env.ledger.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketStatusOpen, got.Status)

	env.clock.Advance(time.Hour)
	got, err = env.ledger.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketStatusClosed, got.Status)
	assert.Equal(t, models.MarketStatusClosed, env.reloadMarket(t, m.ID).Status)

	_, err = env.ledger.GetMarket(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestCloseExpiredMarkets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	early := env.createMarket(t)
	env.clock.Advance(30 * time.Minute)
	late := env.createMarket(t)

	env.clock.Advance(30 * time.Minute)
	closed, err := env.ledger.CloseExpiredMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, models.MarketStatusClosed, env.reloadMarket(t, early.ID).Status)
	assert.Equal(t, models.MarketStatusOpen, env.reloadMarket(t, late.ID).Status)

	closed, err = env.ledger.CloseExpiredMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestGetOddsEmptyPool(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMarket(t, "A", "B", "C", "D")

	view, err := env.ledger.GetOdds(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, view.Outcomes, 4)
	for _, o := range view.Outcomes {
		assert.Equal(t, 0.25, o.Probability)
		assert.Equal(t, 4.0, o.DecimalOdds)
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)
	env.bet(t, m, 0, "alice", "100")
	env.bet(t, m, 1, "bob", "50")

	q, err := env.ledger.Quote(ctx, m.ID, m.Outcomes[0].ID, dec("50"))
	require.NoError(t, err)
	// (50 / 150) * (200 * 0.85)
	assertDecimal(t, "56.67", q.PotentialPayout)
	assert.InDelta(t, 0.75, q.Probability, 1e-9)

	_, err = env.ledger.Quote(ctx, m.ID, m.Outcomes[0].ID, dec("5"))
	assert.ErrorIs(t, err, ErrStakeBelowMinimum)

	// quoting leaves the pool alone
	assertDecimal(t, "150", env.reloadMarket(t, m.ID).TotalPool)
}

func TestListBets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t)
	other := env.createMarket(t)

	env.bet(t, m, 0, "alice", "10")
	env.clock.Advance(time.Second)
	env.bet(t, m, 1, "bob", "20")
	env.clock.Advance(time.Second)
	env.bet(t, other, 0, "alice", "30")

	bets, err := env.ledger.ListMarketBets(ctx, m.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Equal(t, "bob", bets[0].BettorID)

	mine, err := env.ledger.ListBettorBets(ctx, "alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, other.ID, mine[0].MarketID)

	_, err = env.ledger.ListMarketBets(ctx, uuid.New(), 10, 0)
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestGetStreakForNewBettor(t *testing.T) {
	env := newTestEnv(t)
	view, err := env.ledger.GetStreak(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, view.CurrentStreak)
	assertDecimal(t, "1", view.Multiplier)
	require.NotNil(t, view.NextMilestone)
	assert.Equal(t, 3, view.NextMilestone.WinsNeeded)
}

func TestConcurrentBetsConservePool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.createMarket(t, "A", "B", "C")

	const writers = 40
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := m.Outcomes[i%len(m.Outcomes)].ID
			_, errs[i] = env.ledger.PlaceBet(ctx, m.ID, outcome, fmt.Sprintf("bettor-%d", i), dec("12.50"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, writers, succeeded)

	loaded := env.reloadMarket(t, m.ID)
	assert.True(t, loaded.TotalPool.Equal(dec("12.50").Mul(dec("40"))), "pool %s", loaded.TotalPool)
	assert.True(t, loaded.TotalPool.Equal(loaded.StakeSum()))
	assert.Equal(t, int64(writers), loaded.TotalBets)
	assert.Equal(t, int64(writers), loaded.UniqueBettors)

	var stakeOnA int64
	for i, b := range env.betsOf(t, m.ID) {
		assert.Equal(t, int64(i+1), b.Sequence)
		if b.OutcomeID == m.Outcomes[0].ID {
			stakeOnA++
		}
	}
	assertDecimal(t, dec("12.50").Mul(dec("14")).String(), loaded.Outcomes[0].TotalStake)
	assert.Equal(t, int64(14), stakeOnA)
}

func TestMarketLocksReleaseEntries(t *testing.T) {
	locks := NewMarketLocks()
	id := uuid.New()

	unlock := locks.Lock(id)
	assert.Equal(t, 1, locks.size())
	unlock()
	assert.Equal(t, 0, locks.size())

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock(id)
			counter++
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}
