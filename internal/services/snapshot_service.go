package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"parimutuel-market/internal/models"
	"parimutuel-market/internal/odds"
	"parimutuel-market/internal/repository"
)

// SnapshotArchiver stores snapshots before the retention sweep deletes them
type SnapshotArchiver interface {
	ArchiveSnapshots(ctx context.Context, snapshots []models.OddsSnapshot, cutoff time.Time) (string, error)
}

// SnapshotOptions tunes the recorder
type SnapshotOptions struct {
	Retention     time.Duration
	Concurrency   int
	MarketTimeout time.Duration
}

// SnapshotService appends odds history for open markets and enforces the
// retention horizon
type SnapshotService struct {
	repo     *repository.Repository
	archiver SnapshotArchiver
	opts     SnapshotOptions
	log      *logrus.Logger
	now      Clock
}

// NewSnapshotService builds the recorder. archiver may be nil.
func NewSnapshotService(repo *repository.Repository, archiver SnapshotArchiver, opts SnapshotOptions, log *logrus.Logger) *SnapshotService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &SnapshotService{
		repo:     repo,
		archiver: archiver,
		opts:     opts,
		log:      log,
		now:      systemClock,
	}
}

// SetClock replaces the time source.
func (s *SnapshotService) SetClock(c Clock) {
	s.now = c
}

// RecordAll snapshots every market still open at the current time. Markets
// past their deadline are skipped even before the close sweep flips them.
// A market that fails is logged and skipped; only failing to list the
// markets is returned.
func (s *SnapshotService) RecordAll(ctx context.Context) (int, error) {
	ids, err := s.repo.ListOpenMarketIDs(ctx, s.now())
	if err != nil {
		return 0, err
	}

	var recorded atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			mctx := ctx
			if s.opts.MarketTimeout > 0 {
				var cancel context.CancelFunc
				mctx, cancel = context.WithTimeout(ctx, s.opts.MarketTimeout)
				defer cancel()
			}
			if _, err := s.RecordMarket(mctx, id); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"component": "snapshot",
					"market_id": id,
				}).Warn("Failed to record snapshot, skipping market")
				return nil
			}
			recorded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	s.log.WithFields(logrus.Fields{
		"component": "snapshot",
		"markets":   len(ids),
		"recorded":  recorded.Load(),
	}).Info("Snapshot sweep finished")
	return int(recorded.Load()), nil
}

// RecordMarket appends one snapshot of a market's current pricing
func (s *SnapshotService) RecordMarket(ctx context.Context, marketID uuid.UUID) (*models.OddsSnapshot, error) {
	var market *models.Market
	err := s.repo.ReadConsistent(ctx, func(tx *repository.Repository) error {
		m, err := tx.GetMarket(ctx, marketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrMarketNotFound
			}
			return err
		}
		market = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(market.Outcomes) == 0 {
		return nil, fmt.Errorf("market %s has no outcomes", marketID)
	}

	stakes := make([]decimal.Decimal, len(market.Outcomes))
	for i, o := range market.Outcomes {
		stakes[i] = o.TotalStake
	}
	dist := make(map[uuid.UUID]float64, len(market.Outcomes))
	for i, p := range odds.Distribution(stakes) {
		dist[market.Outcomes[i].ID] = p
	}

	snapshot := &models.OddsSnapshot{
		ID:            uuid.New(),
		MarketID:      market.ID,
		TotalPool:     market.TotalPool,
		TotalBets:     market.TotalBets,
		UniqueBettors: market.UniqueBettors,
		RecordedAt:    s.now(),
	}
	if err := snapshot.SetDistribution(dist); err != nil {
		return nil, fmt.Errorf("failed to encode distribution: %w", err)
	}
	if err := s.repo.CreateSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return snapshot, nil
}

// Purge deletes snapshots older than the retention horizon. With an archiver
// configured they are uploaded first, and a failed upload deletes nothing.
func (s *SnapshotService) Purge(ctx context.Context) (int64, error) {
	if s.opts.Retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.opts.Retention)

	if s.archiver != nil {
		expired, err := s.repo.ListSnapshotsBefore(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		key, err := s.archiver.ArchiveSnapshots(ctx, expired, cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to archive snapshots: %w", err)
		}
		if key != "" {
			s.log.WithFields(logrus.Fields{
				"component": "snapshot",
				"key":       key,
				"count":     len(expired),
			}).Info("Archived expired snapshots")
		}
	}

	deleted, err := s.repo.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.WithFields(logrus.Fields{
			"component": "snapshot",
			"deleted":   deleted,
			"cutoff":    cutoff,
		}).Info("Purged expired snapshots")
	}
	return deleted, nil
}

// Sweep records every open market then applies retention
func (s *SnapshotService) Sweep(ctx context.Context) error {
	if _, err := s.RecordAll(ctx); err != nil {
		return err
	}
	_, err := s.Purge(ctx)
	return err
}

// History returns a market's snapshots recorded at or after since
func (s *SnapshotService) History(ctx context.Context, marketID uuid.UUID, since time.Time, limit int) ([]models.OddsSnapshot, error) {
	if _, err := s.repo.GetMarket(ctx, marketID); err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrMarketNotFound
		}
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.repo.ListSnapshots(ctx, marketID, since, limit)
}
