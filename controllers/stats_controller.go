package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

// StatsController provides platform statistics.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns entity counts for the whole platform.
func (s *StatsController) GetStats(ctx *gin.Context) {
	tx := s.db.WithContext(ctx.Request.Context())
	counts := map[string]int64{}
	for key, q := range map[string]*gorm.DB{
		"userCount":    tx.Model(&models.User{}).Where("anonymized_at IS NULL"),
		"channelCount": tx.Model(&models.Channel{}),
		"messageCount": tx.Model(&models.Message{}),
		"replyCount":   tx.Model(&models.Reply{}),
		"ratingCount":  tx.Model(&models.Rating{}),
	} {
		var n int64
		if err := q.Count(&n).Error; err != nil {
			respondError(ctx, err, "failed to count "+key)
			return
		}
		counts[key] = n
	}
	utils.Success(ctx, counts)
}

// GetMessageStats returns reply and rating counts for one message.
func (s *StatsController) GetMessageStats(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	tx := s.db.WithContext(ctx.Request.Context())

	var replyCount int64
	if err := tx.Model(&models.Reply{}).Where("message_id = ?", id).Count(&replyCount).Error; err != nil {
		respondError(ctx, err, "failed to count replies")
		return
	}
	var ratings []models.Rating
	if err := tx.Select("value").
		Where("target_type = ? AND target_id = ?", models.TargetMessage, id).
		Find(&ratings).Error; err != nil {
		respondError(ctx, err, "failed to load ratings")
		return
	}
	utils.Success(ctx, gin.H{
		"replyCount":  replyCount,
		"ratingCount": len(ratings),
		"totalRating": services.TotalRating(ratings),
	})
}
