package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper records odds snapshots and applies retention.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// SnapshotRecorder periodically snapshots open markets
type SnapshotRecorder struct {
	sweeper  Sweeper
	interval time.Duration
	log      *logrus.Logger
	stopChan chan struct{}
}

// NewSnapshotRecorder creates a new snapshot recorder job
func NewSnapshotRecorder(sweeper Sweeper, interval time.Duration, log *logrus.Logger) *SnapshotRecorder {
	return &SnapshotRecorder{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Run records once immediately, then on every tick until ctx is done or
// Stop is called.
func (r *SnapshotRecorder) Run(ctx context.Context) error {
	entry := r.log.WithField("component", "snapshot_recorder")
	entry.WithField("interval", r.interval.String()).Info("Starting snapshot recorder")

	r.sweep(ctx, entry)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx, entry)
		case <-r.stopChan:
			entry.Info("Stopping snapshot recorder")
			return nil
		case <-ctx.Done():
			entry.Info("Stopping snapshot recorder")
			return nil
		}
	}
}

// Stop stops the recorder loop
func (r *SnapshotRecorder) Stop() {
	close(r.stopChan)
}

func (r *SnapshotRecorder) sweep(ctx context.Context, entry *logrus.Entry) {
	start := time.Now()
	if err := r.sweeper.Sweep(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		entry.WithError(err).Error("Snapshot sweep failed")
		return
	}
	entry.WithField("took", time.Since(start).String()).Debug("Snapshot sweep finished")
}
