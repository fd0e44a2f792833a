package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

type rateRequest struct {
	Value *int `json:"value"`
}

// rateTarget upserts the caller's vote and writes the response. It reports
// whether a vote was stored so callers can invalidate cached threads.
func rateTarget(ctx *gin.Context, db *gorm.DB, targetType models.TargetType, targetID uint) bool {
	user, ok := currentUser(ctx)
	if !ok {
		return false
	}
	var req rateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Value == nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "value is required")
		return false
	}

	rating, created, err := services.UpsertRating(ctx.Request.Context(), db, user.ID, targetType, targetID, *req.Value)
	if err != nil {
		respondError(ctx, err, "failed to rate "+string(targetType))
		return false
	}
	totals, err := services.RatingTotals(ctx.Request.Context(), db, targetType, []uint{targetID})
	if err != nil {
		respondError(ctx, err, "failed to total ratings")
		return true
	}

	data := gin.H{"rating": rating, "totalRating": totals[targetID]}
	if created {
		utils.Created(ctx, data)
	} else {
		utils.Success(ctx, data)
	}
	return true
}
