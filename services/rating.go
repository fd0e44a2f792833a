package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/codechannels/models"
)

// TotalRating sums the values of ratings. An empty slice totals 0.
func TotalRating(ratings []models.Rating) int {
	total := 0
	for _, r := range ratings {
		total += r.Value
	}
	return total
}

// RatingTotals loads the ratings of many targets of one type in a single query
// and returns the total per target id. Targets without ratings are absent from the map.
func RatingTotals(ctx context.Context, db *gorm.DB, targetType models.TargetType, ids []uint) (map[uint]int, error) {
	totals := make(map[uint]int, len(ids))
	if len(ids) == 0 {
		return totals, nil
	}
	var ratings []models.Rating
	if err := db.WithContext(ctx).
		Where("target_type = ? AND target_id IN ?", targetType, ids).
		Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("load %s ratings: %w", targetType, err)
	}
	grouped := make(map[uint][]models.Rating, len(ids))
	for _, r := range ratings {
		grouped[r.TargetID] = append(grouped[r.TargetID], r)
	}
	for id, group := range grouped {
		totals[id] = TotalRating(group)
	}
	return totals, nil
}

// UpsertRating stores the vote of userID on a target, replacing any earlier vote.
// The write is a single INSERT ... ON CONFLICT backed by the unique index over
// (user_id, target_type, target_id). created reports whether no vote existed before.
func UpsertRating(ctx context.Context, db *gorm.DB, userID uint, targetType models.TargetType, targetID uint, value int) (rating *models.Rating, created bool, err error) {
	if value != 1 && value != -1 {
		return nil, false, fmt.Errorf("%w: rating value must be 1 or -1", ErrValidation)
	}
	if !targetType.Valid() {
		return nil, false, fmt.Errorf("%w: unknown rating target %q", ErrValidation, targetType)
	}

	tx := db.WithContext(ctx)
	var target interface{}
	if targetType == models.TargetMessage {
		target = &models.Message{}
	} else {
		target = &models.Reply{}
	}
	var n int64
	if err := tx.Model(target).Where("id = ?", targetID).Count(&n).Error; err != nil {
		return nil, false, fmt.Errorf("check %s %d: %w", targetType, targetID, err)
	}
	if n == 0 {
		return nil, false, fmt.Errorf("%w: %s %d", ErrNotFound, targetType, targetID)
	}

	var existing int64
	if err := tx.Model(&models.Rating{}).
		Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
		Count(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("check existing rating: %w", err)
	}

	now := time.Now()
	row := models.Rating{Value: value, UserID: &userID, TargetType: targetType, TargetID: targetID}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "target_type"}, {Name: "target_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": value, "updated_at": now}),
	}).Create(&row).Error; err != nil {
		return nil, false, fmt.Errorf("upsert rating: %w", err)
	}

	var stored models.Rating
	if err := tx.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
		First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("%w: rating vanished after upsert", ErrConflict)
		}
		return nil, false, fmt.Errorf("reload rating: %w", err)
	}
	return &stored, existing == 0, nil
}
