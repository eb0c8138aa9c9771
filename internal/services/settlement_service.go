package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

// SettlementService resolves closed markets: it pays the winners, applies
// streak multipliers and advances every bettor's streak.
type SettlementService struct {
	repo      *repository.Repository
	locks     *MarketLocks
	fees      odds.FeeSchedule
	publisher events.Publisher
	log       *logrus.Logger
	now       Clock

	// streak rows are shared across markets, so resolves run one at a time
	mu sync.Mutex
}

func NewSettlementService(
	repo *repository.Repository,
	locks *MarketLocks,
	fees odds.FeeSchedule,
	publisher events.Publisher,
	log *logrus.Logger,
) *SettlementService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SettlementService{
		repo:      repo,
		locks:     locks,
		fees:      fees,
		publisher: publisher,
		log:       log,
		now:       systemClock,
	}
}

// SetClock replaces the time source.
func (s *SettlementService) SetClock(c Clock) {
	s.now = c
}

// bettorResult folds all of one bettor's bets in a market into a single
// streak transition.
type bettorResult struct {
	won        bool
	lastBetAt  time.Time
	multiplier decimal.Decimal
}

// Resolve settles a market on winningOutcomeID. Everything it writes is
// committed together or not at all.
func (s *SettlementService) Resolve(ctx context.Context, marketID, winningOutcomeID uuid.UUID) (*models.SettlementReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock := s.locks.Lock(marketID)
	defer unlock()

	now := s.now()
	closedNow := false
	var report *models.SettlementReport

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrMarketNotFound
			}
			return fmt.Errorf("failed to lock market: %w", err)
		}

		switch market.Status {
		case models.MarketStatusResolved:
			return ErrMarketAlreadyResolved
		case models.MarketStatusOpen:
			if now.Before(market.ClosesAt) {
				return ErrMarketNotClosed
			}
			// deadline passed but the close sweep has not run yet
			if err := tx.UpdateMarket(ctx, marketID, map[string]interface{}{
				"status":    models.MarketStatusClosed,
				"closed_at": now,
			}); err != nil {
				return err
			}
			market.Status = models.MarketStatusClosed
			closedNow = true
		}

		winning, ok := market.Outcome(winningOutcomeID)
		if !ok {
			return ErrOutcomeNotFound
		}

		bets, err := tx.ListBetsForSettlement(ctx, marketID)
		if err != nil {
			return err
		}
		if len(bets) == 0 {
			return ErrNoBetsPlaced
		}

		if err := tx.MarkWinningOutcome(ctx, marketID, winning.ID); err != nil {
			return err
		}

		split := s.fees.Split(market.TotalPool)
		settlement := &models.MarketSettlement{
			ID:               uuid.New(),
			MarketID:         marketID,
			WinningOutcomeID: winning.ID,
			TotalPool:        market.TotalPool,
			WinnerPool:       split.WinnerPool,
			TreasuryCut:      split.TreasuryCut,
			OpsCut:           split.OpsCut,
			TotalBasePaid:    decimal.Zero,
			StreakBonus:      decimal.Zero,
			TotalPaid:        decimal.Zero,
			Unallocated:      decimal.Zero,
			NoWinningStake:   !winning.TotalStake.IsPositive(),
			SettledAt:        now,
		}

		results, order, streaks, err := s.bettorResults(ctx, tx, bets, winning.ID)
		if err != nil {
			return err
		}

		var winners []int
		var winStakes []decimal.Decimal
		for i := range bets {
			if bets[i].OutcomeID == winning.ID {
				winners = append(winners, i)
				winStakes = append(winStakes, bets[i].Stake)
			}
		}
		basePayouts := make([]decimal.Decimal, len(bets))
		for i := range basePayouts {
			basePayouts[i] = decimal.Zero
		}
		if settlement.NoWinningStake {
			settlement.Unallocated = split.WinnerPool
		} else {
			for j, amount := range odds.AllocatePayouts(winStakes, split.WinnerPool) {
				basePayouts[winners[j]] = amount
			}
		}

		for i := range bets {
			bet := &bets[i]
			if bet.IsSettled() {
				return fmt.Errorf("%w: %s", ErrBetAlreadySettled, bet.ID)
			}

			res := results[bet.BettorID]
			resolution := models.BetLost
			base := decimal.Zero
			payout := decimal.Zero
			if bet.OutcomeID == winning.ID && !settlement.NoWinningStake {
				resolution = models.BetWon
				base = basePayouts[i]
				payout = base.Mul(res.multiplier).Round(odds.MoneyPlaces)
				settlement.WinningBets++
			} else {
				settlement.LosingBets++
			}

			if err := tx.SettleBet(ctx, bet.ID, resolution, base, payout, res.multiplier, now); err != nil {
				if errors.Is(err, repository.ErrStaleWrite) {
					return fmt.Errorf("%w: %s", ErrBetAlreadySettled, bet.ID)
				}
				return err
			}
			settlement.TotalBasePaid = settlement.TotalBasePaid.Add(base)
			settlement.TotalPaid = settlement.TotalPaid.Add(payout)
			settlement.BetsSettled++
		}
		settlement.StreakBonus = settlement.TotalPaid.Sub(settlement.TotalBasePaid)

		if err := s.advanceStreaks(ctx, tx, results, streaks, order, now); err != nil {
			return err
		}

		if err := tx.UpdateMarket(ctx, marketID, map[string]interface{}{
			"status":             models.MarketStatusResolved,
			"winning_outcome_id": winning.ID,
			"resolved_at":        now,
		}); err != nil {
			return err
		}
		if err := tx.CreateSettlement(ctx, settlement); err != nil {
			return fmt.Errorf("failed to record settlement: %w", err)
		}

		report = buildReport(settlement, market.Outcomes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"component":        "settlement",
		"market_id":        marketID,
		"winning_outcome":  winningOutcomeID,
		"bets_settled":     report.BetsSettled,
		"total_paid":       report.TotalPaid.String(),
		"no_winning_stake": report.NoWinningStake,
	}).Info("Market resolved")

	if closedNow {
		s.publish(ctx, events.New(events.MarketClosed, marketID, now, nil))
	}
	s.publish(ctx, events.New(events.MarketResolved, marketID, now, report))
	return report, nil
}

// bettorResults works out, per bettor, whether they won the market, when
// they last bet on it and the multiplier their pre-settlement streak earns.
// order lists bettors by first bet. The returned streak rows stay locked
// until the transaction ends.
func (s *SettlementService) bettorResults(
	ctx context.Context,
	tx *repository.Repository,
	bets []models.Bet,
	winningID uuid.UUID,
) (map[string]*bettorResult, []string, map[string]*models.BettorStreak, error) {
	results := make(map[string]*bettorResult)
	var order []string
	for _, bet := range bets {
		res, ok := results[bet.BettorID]
		if !ok {
			res = &bettorResult{}
			results[bet.BettorID] = res
			order = append(order, bet.BettorID)
		}
		if bet.OutcomeID == winningID {
			res.won = true
		}
		if bet.PlacedAt.After(res.lastBetAt) {
			res.lastBetAt = bet.PlacedAt
		}
	}

	streaks, err := tx.GetStreaksForUpdate(ctx, order)
	if err != nil {
		return nil, nil, nil, err
	}
	for id, res := range results {
		res.multiplier = streak.MultiplierFor(streaks[id].CurrentStreak)
	}
	return results, order, streaks, nil
}

func (s *SettlementService) advanceStreaks(
	ctx context.Context,
	tx *repository.Repository,
	results map[string]*bettorResult,
	streaks map[string]*models.BettorStreak,
	order []string,
	now time.Time,
) error {
	for _, bettorID := range order {
		res := results[bettorID]
		row := streaks[bettorID]

		next := streak.Advance(streak.State{
			Current:   row.CurrentStreak,
			Longest:   row.LongestStreak,
			LastBetAt: row.LastBetAt,
		}, res.won, res.lastBetAt)

		row.CurrentStreak = next.Current
		row.LongestStreak = next.Longest
		row.LastBetAt = next.LastBetAt
		if res.won {
			row.TotalWins++
		} else {
			row.TotalLosses++
		}
		row.UpdatedAt = now
		if err := tx.SaveStreak(ctx, row); err != nil {
			return err
		}

		s.log.WithFields(logrus.Fields{
			"component": "settlement",
			"bettor_id": bettorID,
			"won":       res.won,
			"streak":    row.CurrentStreak,
		}).Debug("Streak updated")
	}
	return nil
}

// GetSettlement returns the recorded settlement of a resolved market
func (s *SettlementService) GetSettlement(ctx context.Context, marketID uuid.UUID) (*models.SettlementReport, error) {
	var report *models.SettlementReport
	err := s.repo.ReadConsistent(ctx, func(tx *repository.Repository) error {
		market, err := tx.GetMarket(ctx, marketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrMarketNotFound
			}
			return fmt.Errorf("failed to get market: %w", err)
		}
		settlement, err := tx.GetSettlement(ctx, marketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrSettlementNotFound
			}
			return fmt.Errorf("failed to get settlement: %w", err)
		}
		report = buildReport(settlement, market.Outcomes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *SettlementService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"component": "settlement",
			"market_id": e.MarketID,
			"event":     e.Type,
		}).Warn("Failed to publish event")
	}
}

func buildReport(settlement *models.MarketSettlement, outcomes []models.Outcome) *models.SettlementReport {
	report := &models.SettlementReport{
		MarketSettlement: *settlement,
		TreasuryNet:      settlement.TreasuryNet(),
		OutcomeStakes:    make([]models.OutcomeStake, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		report.OutcomeStakes = append(report.OutcomeStakes, models.OutcomeStake{
			OutcomeID:  o.ID,
			Label:      o.Label,
			TotalStake: o.TotalStake,
			BetCount:   o.BetCount,
			IsWinning:  o.ID == settlement.WinningOutcomeID,
		})
	}
	return report
}
