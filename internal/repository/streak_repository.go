package repository

import (
	"context"
	"fmt"

	"parimutuel-market/internal/models"

	"gorm.io/gorm/clause"
)

// GetStreak returns a bettor's streak, or a zero streak if none is stored
func (r *Repository) GetStreak(ctx context.Context, bettorID string) (*models.BettorStreak, error) {
	var streaks []models.BettorStreak
	if err := r.db.WithContext(ctx).
		Where("bettor_id = ?", bettorID).
		Limit(1).
		Find(&streaks).Error; err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	if len(streaks) == 0 {
		return &models.BettorStreak{BettorID: bettorID}, nil
	}
	return &streaks[0], nil
}

// GetStreaksForUpdate loads and row-locks the streaks of the given bettors.
// Bettors without a stored streak get a zero record.
func (r *Repository) GetStreaksForUpdate(ctx context.Context, bettorIDs []string) (map[string]*models.BettorStreak, error) {
	out := make(map[string]*models.BettorStreak, len(bettorIDs))
	if len(bettorIDs) == 0 {
		return out, nil
	}

	var streaks []models.BettorStreak
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("bettor_id IN ?", bettorIDs).
		Find(&streaks).Error; err != nil {
		return nil, fmt.Errorf("failed to lock streaks: %w", err)
	}
	for i := range streaks {
		out[streaks[i].BettorID] = &streaks[i]
	}
	for _, id := range bettorIDs {
		if _, ok := out[id]; !ok {
			out[id] = &models.BettorStreak{BettorID: id}
		}
	}
	return out, nil
}

// SaveStreak upserts a bettor's streak
func (r *Repository) SaveStreak(ctx context.Context, s *models.BettorStreak) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bettor_id"}},
		UpdateAll: true,
	}).Create(s).Error; err != nil {
		return fmt.Errorf("failed to save streak for %s: %w", s.BettorID, err)
	}
	return nil
}
