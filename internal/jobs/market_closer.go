package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpiredMarketCloser closes markets whose deadline has passed.
type ExpiredMarketCloser interface {
	CloseExpiredMarkets(ctx context.Context) (int, error)
}

// MarketCloser flips OPEN markets past their deadline to CLOSED so that
// listings and the snapshot recorder see the right state without waiting
// for a read or a bet to touch them.
type MarketCloser struct {
	closer   ExpiredMarketCloser
	interval time.Duration
	log      *logrus.Logger
	stopChan chan struct{}
}

func NewMarketCloser(closer ExpiredMarketCloser, interval time.Duration, log *logrus.Logger) *MarketCloser {
	return &MarketCloser{
		closer:   closer,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Run sweeps on every tick until ctx is done or Stop is called
func (m *MarketCloser) Run(ctx context.Context) error {
	entry := m.log.WithField("component", "market_closer")
	entry.WithField("interval", m.interval.String()).Info("Starting market closer")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.closeExpired(ctx, entry)
		case <-m.stopChan:
			entry.Info("Stopping market closer")
			return nil
		case <-ctx.Done():
			entry.Info("Stopping market closer")
			return nil
		}
	}
}

// Stop stops the closer loop
func (m *MarketCloser) Stop() {
	close(m.stopChan)
}

func (m *MarketCloser) closeExpired(ctx context.Context, entry *logrus.Entry) {
	closed, err := m.closer.CloseExpiredMarkets(ctx)
	if err != nil {
		if ctx.Err() == nil {
			entry.WithError(err).Error("Failed to close expired markets")
		}
		return
	}
	if closed > 0 {
		entry.WithField("closed", closed).Info("Closed expired markets")
	}
}
