package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
)

// ProfileStats summarises what a user has written and how it was rated.
type ProfileStats struct {
	MessageCount  int64   `json:"messageCount"`
	ReplyCount    int64   `json:"replyCount"`
	TotalPosts    int64   `json:"totalPosts"`
	TotalRatings  int64   `json:"totalRatings"`
	AverageRating float64 `json:"averageRating"`
}

// UserStats counts the posts of a user and the ratings received on them.
func UserStats(ctx context.Context, db *gorm.DB, userID uint) (*ProfileStats, error) {
	tx := db.WithContext(ctx)
	st := &ProfileStats{}
	if err := tx.Model(&models.Message{}).Where("user_id = ?", userID).Count(&st.MessageCount).Error; err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := tx.Model(&models.Reply{}).Where("user_id = ?", userID).Count(&st.ReplyCount).Error; err != nil {
		return nil, fmt.Errorf("count replies: %w", err)
	}
	st.TotalPosts = st.MessageCount + st.ReplyCount

	var ratings []models.Rating
	if err := tx.Select("value").
		Where("(target_type = ? AND target_id IN (?)) OR (target_type = ? AND target_id IN (?))",
			models.TargetMessage, db.Model(&models.Message{}).Select("id").Where("user_id = ?", userID),
			models.TargetReply, db.Model(&models.Reply{}).Select("id").Where("user_id = ?", userID),
		).Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("load received ratings: %w", err)
	}
	st.TotalRatings = int64(len(ratings))
	if st.TotalRatings > 0 {
		st.AverageRating = float64(TotalRating(ratings)) / float64(st.TotalRatings)
	}
	return st, nil
}

// ActiveUser loads a user that has not been anonymized.
func ActiveUser(ctx context.Context, db *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("anonymized_at IS NULL").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &user, nil
}

// AnonymizeUser marks an account as deleted. The row and its identity
// columns stay so authored content keeps a valid owner; the password is
// cleared so the account can no longer sign in. Admin accounts are refused.
func AnonymizeUser(ctx context.Context, db *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", ErrNotFound, userID)
			}
			return fmt.Errorf("load user %d: %w", userID, err)
		}
		if user.IsAdmin {
			return fmt.Errorf("%w: cannot delete an admin user", ErrForbidden)
		}
		if user.AnonymizedAt != nil {
			return nil
		}
		now := time.Now()
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"anonymized_at": now,
			"password_hash": "",
		}).Error; err != nil {
			return fmt.Errorf("anonymize user %d: %w", userID, err)
		}
		user.AnonymizedAt = &now
		user.PasswordHash = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureAdmin creates the configured administrator when no user holds that
// username yet. An existing user with the name is promoted.
func EnsureAdmin(ctx context.Context, db *gorm.DB, username, email, passwordHash string) (*models.User, bool, error) {
	tx := db.WithContext(ctx)
	var user models.User
	err := tx.Where("username = ?", username).First(&user).Error
	switch {
	case err == nil:
		if !user.IsAdmin {
			if err := tx.Model(&user).Update("is_admin", true).Error; err != nil {
				return nil, false, fmt.Errorf("promote %s: %w", username, err)
			}
			user.IsAdmin = true
		}
		return &user, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, fmt.Errorf("load admin %s: %w", username, err)
	}

	user = models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Level:        models.LevelExpert,
		IsAdmin:      true,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, false, fmt.Errorf("create admin %s: %w", username, err)
	}
	return &user, true, nil
}
