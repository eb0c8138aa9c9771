package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parimutuel-market/internal/database"
	"parimutuel-market/internal/events"
	"parimutuel-market/internal/logging"
	"parimutuel-market/internal/models"
	"parimutuel-market/internal/odds"
	"parimutuel-market/internal/repository"
)

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	// cache=shared keeps the in-memory database alive across pool connections;
	// the unique name isolates each test.
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db         *gorm.DB
	repo       *repository.Repository
	clock      *fakeClock
	events     *events.MemoryPublisher
	ledger     *LedgerService
	settlement *SettlementService
	snapshots  *SnapshotService
	consensus  *ConsensusService
}

func newTestEnv(t testing.TB) *testEnv {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	clock := newFakeClock()
	pub := &events.MemoryPublisher{}
	log := logging.Discard()
	locks := NewMarketLocks()
	fees := odds.DefaultFeeSchedule()

	env := &testEnv{
		db:         db,
		repo:       repo,
		clock:      clock,
		events:     pub,
		ledger:     NewLedgerService(repo, locks, fees, pub, log),
		settlement: NewSettlementService(repo, locks, fees, pub, log),
		snapshots: NewSnapshotService(repo, nil, SnapshotOptions{
			Retention:     30 * 24 * time.Hour,
			Concurrency:   4,
			MarketTimeout: 5 * time.Second,
		}, log),
		consensus: NewConsensusService(repo, ConsensusOptions{
			Lookback:         15 * time.Minute,
			TrendEpsilon:     0.01,
			ConfidenceFactor: 100,
		}),
	}
	env.ledger.SetClock(clock.Now)
	env.settlement.SetClock(clock.Now)
	env.snapshots.SetClock(clock.Now)
	env.consensus.SetClock(clock.Now)
	return env
}

// createMarket opens a market closing in one hour with minBet 10
func (e *testEnv) createMarket(t testing.TB, labels ...string) *models.Market {
	t.Helper()
	if len(labels) == 0 {
		labels = []string{"A", "B"}
	}
	m, err := e.ledger.CreateMarket(context.Background(), models.CreateMarketRequest{
		ChapterID: "chapter-" + uuid.NewString()[:8],
		Title:     "Who opens the vault?",
		Outcomes:  labels,
		ClosesAt:  e.clock.Now().Add(time.Hour),
		MinBet:    dec("10"),
	})
	require.NoError(t, err)
	return m
}

func (e *testEnv) bet(t *testing.T, market *models.Market, outcome int, bettor string, stake string) *models.Bet {
	t.Helper()
	res, err := e.ledger.PlaceBet(context.Background(), market.ID, market.Outcomes[outcome].ID, bettor, dec(stake))
	require.NoError(t, err)
	return res.Bet
}

func (e *testEnv) reloadMarket(t *testing.T, id uuid.UUID) *models.Market {
	t.Helper()
	m, err := e.repo.GetMarket(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (e *testEnv) betsOf(t *testing.T, marketID uuid.UUID) []models.Bet {
	t.Helper()
	bets, err := e.repo.ListBetsForSettlement(context.Background(), marketID)
	require.NoError(t, err)
	return bets
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "want %s, got %s %v", want, got.String(), msgAndArgs)
}
