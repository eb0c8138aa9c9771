package repository

import (
	"context"
	"fmt"
	"time"

	"parimutuel-market/internal/models"

	"github.com/google/uuid"
)

// CreateSnapshot appends one odds snapshot
func (r *Repository) CreateSnapshot(ctx context.Context, snapshot *models.OddsSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

// ListSnapshots returns a market's snapshots recorded at or after since, oldest first
func (r *Repository) ListSnapshots(ctx context.Context, marketID uuid.UUID, since time.Time, limit int) ([]models.OddsSnapshot, error) {
	var snapshots []models.OddsSnapshot
	if err := r.db.WithContext(ctx).
		Where("market_id = ? AND recorded_at >= ?", marketID, since).
		Order("recorded_at ASC").
		Limit(limit).
		Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}
	return snapshots, nil
}

// LatestSnapshotAtOrBefore returns the newest snapshot recorded no later than
// at, or nil if there is none
func (r *Repository) LatestSnapshotAtOrBefore(ctx context.Context, marketID uuid.UUID, at time.Time) (*models.OddsSnapshot, error) {
	var snapshots []models.OddsSnapshot
	if err := r.db.WithContext(ctx).
		Where("market_id = ? AND recorded_at <= ?", marketID, at).
		Order("recorded_at DESC").
		Limit(1).
		Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return &snapshots[0], nil
}

// ListSnapshotsBefore returns every snapshot recorded strictly before cutoff
func (r *Repository) ListSnapshotsBefore(ctx context.Context, cutoff time.Time) ([]models.OddsSnapshot, error) {
	var snapshots []models.OddsSnapshot
	if err := r.db.WithContext(ctx).
		Where("recorded_at < ?", cutoff).
		Order("recorded_at ASC").
		Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired snapshots: %w", err)
	}
	return snapshots, nil
}

// DeleteSnapshotsBefore purges snapshots recorded strictly before cutoff
func (r *Repository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recorded_at < ?", cutoff).
		Delete(&models.OddsSnapshot{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge snapshots: %w", result.Error)
	}
	return result.RowsAffected, nil
}
