package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"parimutuel-market/internal/models"
	"parimutuel-market/internal/repository"
)

// ConsensusOptions tunes the consensus evaluator
type ConsensusOptions struct {
	Lookback         time.Duration
	TrendEpsilon     float64
	ConfidenceFactor float64
}

// ConsensusService derives the crowd view of a market from the live pool and
// the snapshot history. It never writes.
type ConsensusService struct {
	repo *repository.Repository
	opts ConsensusOptions
	now  Clock
}

func NewConsensusService(repo *repository.Repository, opts ConsensusOptions) *ConsensusService {
	if opts.ConfidenceFactor <= 0 {
		opts.ConfidenceFactor = 100
	}
	return &ConsensusService{repo: repo, opts: opts, now: systemClock}
}

// SetClock replaces the time source.
func (s *ConsensusService) SetClock(c Clock) {
	s.now = c
}

// Consensus returns the leading outcome, how far ahead it is and where it
// is heading
func (s *ConsensusService) Consensus(ctx context.Context, marketID uuid.UUID) (*models.Consensus, error) {
	now := s.now()
	var market *models.Market
	var past *models.OddsSnapshot

	err := s.repo.ReadConsistent(ctx, func(tx *repository.Repository) error {
		m, err := tx.GetMarket(ctx, marketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrMarketNotFound
			}
			return fmt.Errorf("failed to get market: %w", err)
		}
		market = m
		past, err = tx.LatestSnapshotAtOrBefore(ctx, marketID, now.Add(-s.opts.Lookback))
		return err
	})
	if err != nil {
		return nil, err
	}

	view := buildOdds(market, now)
	result := &models.Consensus{
		MarketID:     market.ID,
		Distribution: view.Outcomes,
		Trend:        models.TrendStable,
		AsOf:         now,
	}
	if len(view.Outcomes) == 0 {
		return result, nil
	}

	ranked := make([]models.OutcomeOdds, len(view.Outcomes))
	copy(ranked, view.Outcomes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})
	leader := ranked[0]
	result.LeadingOutcome = &leader
	if len(ranked) > 1 {
		result.ConfidenceLevel = confidence(leader.Probability, ranked[1].Probability, s.opts.ConfidenceFactor)
	}

	if past != nil {
		dist, err := past.Distribution()
		if err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", past.ID, err)
		}
		if prev, ok := dist[leader.OutcomeID]; ok {
			result.HasHistory = true
			result.TrendDelta = leader.Probability - prev
			result.Trend = trend(result.TrendDelta, s.opts.TrendEpsilon)
		}
	}
	return result, nil
}

// confidence maps the gap between the top two probabilities onto 0..100
func confidence(p1, p2, k float64) float64 {
	c := (p1 - p2) * k
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func trend(delta, epsilon float64) models.Trend {
	switch {
	case delta > epsilon:
		return models.TrendRising
	case delta < -epsilon:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}
