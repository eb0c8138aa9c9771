package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/events"
	"parimutuel-market/internal/models"
	"parimutuel-market/internal/odds"
	"parimutuel-market/internal/repository"
	"parimutuel-market/internal/streak"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// LedgerService owns the pool state of every market: creation, bet
// placement and the OPEN -> CLOSED transition.
type LedgerService struct {
	repo      *repository.Repository
	locks     *MarketLocks
	fees      odds.FeeSchedule
	publisher events.Publisher
	log       *logrus.Logger
	now       Clock
}

func NewLedgerService(
	repo *repository.Repository,
	locks *MarketLocks,
	fees odds.FeeSchedule,
	publisher events.Publisher,
	log *logrus.Logger,
) *LedgerService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &LedgerService{
		repo:      repo,
		locks:     locks,
		fees:      fees,
		publisher: publisher,
		log:       log,
		now:       systemClock,
	}
}

// SetClock replaces the time source.
func (s *LedgerService) SetClock(c Clock) {
	s.now = c
}

// CreateMarket publishes a new market with its outcomes in the given order
func (s *LedgerService) CreateMarket(ctx context.Context, req models.CreateMarketRequest) (*models.Market, error) {
	now := s.now()

	chapterID := strings.TrimSpace(req.ChapterID)
	title := strings.TrimSpace(req.Title)
	if chapterID == "" || title == "" {
		return nil, fmt.Errorf("%w: chapter and title are required", ErrInvalidMarket)
	}
	if len(req.Outcomes) < 2 {
		return nil, fmt.Errorf("%w: at least two outcomes are required", ErrInvalidMarket)
	}

	opensAt := now
	if req.OpensAt != nil {
		opensAt = req.OpensAt.UTC()
	}
	closesAt := req.ClosesAt.UTC()
	if !closesAt.After(opensAt) {
		return nil, fmt.Errorf("%w: closes_at must be after opens_at", ErrInvalidMarket)
	}
	if !req.MinBet.IsPositive() || !isMoney(req.MinBet) {
		return nil, fmt.Errorf("%w: min_bet must be a positive amount", ErrInvalidMarket)
	}
	if req.MaxBet != nil && (!isMoney(*req.MaxBet) || req.MaxBet.LessThan(req.MinBet)) {
		return nil, fmt.Errorf("%w: max_bet must not be below min_bet", ErrInvalidMarket)
	}

	market := &models.Market{
		ID:            uuid.New(),
		ChapterID:     chapterID,
		Title:         title,
		Status:        models.MarketStatusOpen,
		OpensAt:       opensAt,
		ClosesAt:      closesAt,
		MinBet:        req.MinBet,
		MaxBet:        req.MaxBet,
		TotalPool:     decimal.Zero,
		TotalBets:     0,
		UniqueBettors: 0,
	}

	seen := make(map[string]bool, len(req.Outcomes))
	for i, raw := range req.Outcomes {
		label := strings.TrimSpace(raw)
		key := strings.ToLower(label)
		if label == "" || seen[key] {
			return nil, fmt.Errorf("%w: outcome labels must be non-empty and unique", ErrInvalidMarket)
		}
		seen[key] = true
		market.Outcomes = append(market.Outcomes, models.Outcome{
			ID:         uuid.New(),
			MarketID:   market.ID,
			Position:   i,
			Label:      label,
			TotalStake: decimal.Zero,
		})
	}

	if err := s.repo.CreateMarket(ctx, market); err != nil {
		return nil, fmt.Errorf("failed to create market: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"component": "ledger",
		"market_id": market.ID,
		"outcomes":  len(market.Outcomes),
		"closes_at": market.ClosesAt,
	}).Info("Market created")
	return market, nil
}

// GetMarket returns a market with its effective status. A market found past
// its deadline is closed on the way out.
func (s *LedgerService) GetMarket(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	market, err := s.loadMarket(ctx, s.repo, marketID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if market.Status == models.MarketStatusOpen && !now.Before(market.ClosesAt) {
		if err := s.CloseMarket(ctx, marketID); err != nil {
			s.log.WithError(err).WithField("market_id", marketID).Warn("Failed to close expired market on read")
		}
	}
	market.Status = market.EffectiveStatus(now)
	return market, nil
}

// ListMarkets returns markets newest first. status filters on the stored flag.
func (s *LedgerService) ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]models.Market, error) {
	limit, offset = page(limit, offset)
	markets, err := s.repo.ListMarkets(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range markets {
		markets[i].Status = markets[i].EffectiveStatus(now)
	}
	return markets, nil
}

// GetOdds returns the live pricing of every outcome from one consistent read
func (s *LedgerService) GetOdds(ctx context.Context, marketID uuid.UUID) (*models.MarketOdds, error) {
	var view models.MarketOdds
	err := s.repo.ReadConsistent(ctx, func(tx *repository.Repository) error {
		market, err := s.loadMarket(ctx, tx, marketID)
		if err != nil {
			return err
		}
		view = buildOdds(market, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Quote prices a hypothetical bet as if its stake were already in the pool.
// The streak multiplier is not included.
func (s *LedgerService) Quote(ctx context.Context, marketID, outcomeID uuid.UUID, stake decimal.Decimal) (*models.QuoteResponse, error) {
	if err := validateStake(stake); err != nil {
		return nil, err
	}

	var quote *models.QuoteResponse
	err := s.repo.ReadConsistent(ctx, func(tx *repository.Repository) error {
		market, err := s.loadMarket(ctx, tx, marketID)
		if err != nil {
			return err
		}
		outcome, err := checkBet(market, outcomeID, stake, s.now())
		if err != nil {
			return err
		}

		outcomeStake := outcome.TotalStake.Add(stake)
		pool := market.TotalPool.Add(stake)
		p := odds.ImpliedProbability(outcomeStake, pool, len(market.Outcomes))
		quote = &models.QuoteResponse{
			MarketID:        market.ID,
			OutcomeID:       outcome.ID,
			Stake:           stake,
			PotentialPayout: odds.PotentialPayout(stake, outcomeStake, pool, s.fees.WinnerShare),
			Probability:     p,
			DecimalOdds:     odds.DecimalOdds(p),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// PlaceBet adds a wager to the pool. The bet record and every counter it
// touches are written in one transaction under the market's lock.
func (s *LedgerService) PlaceBet(ctx context.Context, marketID, outcomeID uuid.UUID, bettorID string, stake decimal.Decimal) (*models.PlaceBetResult, error) {
	bettorID = strings.TrimSpace(bettorID)
	if bettorID == "" {
		return nil, ErrInvalidBettor
	}
	if err := validateStake(stake); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(marketID)
	defer unlock()

	now := s.now()
	var result *models.PlaceBetResult
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrMarketNotFound
			}
			return fmt.Errorf("failed to lock market: %w", err)
		}

		outcome, err := checkBet(market, outcomeID, stake, now)
		if err != nil {
			return err
		}

		// odds shown to the bettor are taken before the stake joins the pool
		probability := odds.ImpliedProbability(outcome.TotalStake, market.TotalPool, len(market.Outcomes))

		returning, err := tx.HasBettorBet(ctx, marketID, bettorID)
		if err != nil {
			return err
		}

		outcome.TotalStake = outcome.TotalStake.Add(stake)
		outcome.BetCount++
		if err := tx.UpdateOutcome(ctx, outcome.ID, map[string]interface{}{
			"total_stake": outcome.TotalStake,
			"bet_count":   outcome.BetCount,
		}); err != nil {
			return err
		}

		market.TotalPool = market.TotalPool.Add(stake)
		market.TotalBets++
		if !returning {
			market.UniqueBettors++
		}
		if err := tx.UpdateMarket(ctx, marketID, map[string]interface{}{
			"total_pool":     market.TotalPool,
			"total_bets":     market.TotalBets,
			"unique_bettors": market.UniqueBettors,
		}); err != nil {
			return err
		}

		bet := &models.Bet{
			ID:                     uuid.New(),
			MarketID:               marketID,
			OutcomeID:              outcome.ID,
			BettorID:               bettorID,
			Sequence:               market.TotalBets,
			Stake:                  stake,
			ProbabilityAtPlacement: probability,
			OddsAtPlacement:        odds.DecimalOdds(probability),
			PlacedAt:               now,
			Resolution:             models.BetPending,
		}
		if err := tx.CreateBet(ctx, bet); err != nil {
			return fmt.Errorf("failed to create bet: %w", err)
		}

		result = &models.PlaceBetResult{Bet: bet, Odds: buildOdds(market, now)}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMarketClosed) {
			if _, closeErr := s.closeLocked(ctx, marketID); closeErr != nil {
				s.log.WithError(closeErr).WithField("market_id", marketID).Warn("Failed to close expired market")
			}
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"component": "ledger",
		"market_id": marketID,
		"bet_id":    result.Bet.ID,
		"bettor_id": bettorID,
		"stake":     stake.String(),
	}).Debug("Bet placed")
	s.publish(ctx, events.New(events.BetPlaced, marketID, now, result))
	return result, nil
}

// CloseMarket flips an OPEN market to CLOSED. Closing a CLOSED or RESOLVED
// market is a no-op.
func (s *LedgerService) CloseMarket(ctx context.Context, marketID uuid.UUID) error {
	unlock := s.locks.Lock(marketID)
	defer unlock()

	_, err := s.closeLocked(ctx, marketID)
	return err
}

// CloseExpiredMarkets closes every OPEN market whose deadline has passed.
// Failures are logged and skipped.
func (s *LedgerService) CloseExpiredMarkets(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpiredOpenMarketIDs(ctx, s.now())
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, id := range ids {
		if err := s.CloseMarket(ctx, id); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"component": "ledger",
				"market_id": id,
			}).Warn("Failed to close market")
			continue
		}
		closed++
	}
	return closed, nil
}

// closeLocked must be called with the market lock held.
func (s *LedgerService) closeLocked(ctx context.Context, marketID uuid.UUID) (bool, error) {
	now := s.now()
	transitioned := false
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrMarketNotFound
			}
			return fmt.Errorf("failed to lock market: %w", err)
		}
		if market.Status != models.MarketStatusOpen {
			return nil
		}
		if err := tx.UpdateMarket(ctx, marketID, map[string]interface{}{
			"status":    models.MarketStatusClosed,
			"closed_at": now,
		}); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if transitioned {
		s.log.WithFields(logrus.Fields{
			"component": "ledger",
			"market_id": marketID,
		}).Info("Market closed")
		s.publish(ctx, events.New(events.MarketClosed, marketID, now, nil))
	}
	return transitioned, nil
}

// ListMarketBets returns a page of bets on a market, newest first
func (s *LedgerService) ListMarketBets(ctx context.Context, marketID uuid.UUID, limit, offset int) ([]models.Bet, error) {
	if _, err := s.loadMarket(ctx, s.repo, marketID); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	return s.repo.ListMarketBets(ctx, marketID, limit, offset)
}

// ListBettorBets returns a page of one bettor's bets, newest first
func (s *LedgerService) ListBettorBets(ctx context.Context, bettorID string, limit, offset int) ([]models.Bet, error) {
	limit, offset = page(limit, offset)
	return s.repo.ListBettorBets(ctx, bettorID, limit, offset)
}

// GetStreak returns a bettor's streak with the multiplier it earns today
func (s *LedgerService) GetStreak(ctx context.Context, bettorID string) (*models.StreakView, error) {
	st, err := s.repo.GetStreak(ctx, bettorID)
	if err != nil {
		return nil, err
	}
	view := &models.StreakView{
		BettorStreak: *st,
		Multiplier:   streak.MultiplierFor(st.CurrentStreak),
	}
	if next, ok := streak.NextMilestone(st.CurrentStreak); ok {
		view.NextMilestone = &next
	}
	return view, nil
}

func (s *LedgerService) loadMarket(ctx context.Context, repo *repository.Repository, marketID uuid.UUID) (*models.Market, error) {
	market, err := repo.GetMarket(ctx, marketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return market, nil
}

func (s *LedgerService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"component": "ledger",
			"market_id": e.MarketID,
			"event":     e.Type,
		}).Warn("Failed to publish event")
	}
}

// checkBet applies the placement preconditions in order: status flag,
// opening time, deadline, outcome membership, stake limits.
func checkBet(market *models.Market, outcomeID uuid.UUID, stake decimal.Decimal, now time.Time) (*models.Outcome, error) {
	if !market.AcceptsBets(now) {
		// an OPEN flag that reads as CLOSED means only the deadline passed
		if market.Status == models.MarketStatusOpen && market.EffectiveStatus(now) == models.MarketStatusClosed {
			return nil, ErrMarketClosed
		}
		return nil, ErrMarketNotOpen
	}
	outcome, ok := market.Outcome(outcomeID)
	if !ok {
		return nil, ErrOutcomeNotFound
	}
	if stake.LessThan(market.MinBet) {
		return nil, ErrStakeBelowMinimum
	}
	if market.MaxBet != nil && stake.GreaterThan(*market.MaxBet) {
		return nil, ErrStakeAboveMaximum
	}
	return outcome, nil
}

func validateStake(stake decimal.Decimal) error {
	if !stake.IsPositive() || !isMoney(stake) {
		return ErrInvalidStake
	}
	return nil
}

func isMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(odds.MoneyPlaces))
}

func buildOdds(market *models.Market, now time.Time) models.MarketOdds {
	view := models.MarketOdds{
		MarketID:      market.ID,
		Status:        market.EffectiveStatus(now),
		TotalPool:     market.TotalPool,
		TotalBets:     market.TotalBets,
		UniqueBettors: market.UniqueBettors,
		Outcomes:      make([]models.OutcomeOdds, 0, len(market.Outcomes)),
		AsOf:          now,
	}
	for _, o := range market.Outcomes {
		p := odds.ImpliedProbability(o.TotalStake, market.TotalPool, len(market.Outcomes))
		view.Outcomes = append(view.Outcomes, models.OutcomeOdds{
			OutcomeID:   o.ID,
			Label:       o.Label,
			Position:    o.Position,
			TotalStake:  o.TotalStake,
			BetCount:    o.BetCount,
			Probability: p,
			DecimalOdds: odds.DecimalOdds(p),
		})
	}
	return view
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
