package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

const channelListCacheKey = utils.ChannelCachePrefix + "all"

// ChannelController manages channels.
type ChannelController struct {
	db *gorm.DB
}

// NewChannelController creates a new ChannelController instance.
func NewChannelController(db *gorm.DB) *ChannelController {
	return &ChannelController{db: db}
}

type channelRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ListChannels returns every channel with its creator.
func (c *ChannelController) ListChannels(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(ctx.Request.Context(), channelListCacheKey); ok {
		var cached []models.Channel
		if err := json.Unmarshal(b, &cached); err == nil {
			utils.Success(ctx, cached)
			return
		}
	}

	channels := []models.Channel{}
	if err := c.db.WithContext(ctx.Request.Context()).
		Preload("Creator").Order("name ASC").Find(&channels).Error; err != nil {
		respondError(ctx, err, "failed to retrieve channels")
		return
	}
	utils.CacheSetJSON(ctx.Request.Context(), channelListCacheKey, channels, 0)
	utils.Success(ctx, channels)
}

// GetChannel returns one channel with its creator.
func (c *ChannelController) GetChannel(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var channel models.Channel
	if err := c.db.WithContext(ctx.Request.Context()).Preload("Creator").First(&channel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "channel not found")
			return
		}
		respondError(ctx, err, "failed to retrieve channel")
		return
	}
	utils.Success(ctx, channel)
}

// CreateChannel lets an authenticated user open a channel.
func (c *ChannelController) CreateChannel(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req channelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	if req.Name == nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "channel name is required")
		return
	}

	channel := models.Channel{UserID: &user.ID}
	if !c.applyChannelFields(ctx, &channel, req) {
		return
	}
	if !c.ensureNameFree(ctx, channel.Name, 0) {
		return
	}
	if err := c.db.WithContext(ctx.Request.Context()).Create(&channel).Error; err != nil {
		respondError(ctx, err, "failed to create channel")
		return
	}
	channel.Creator = user
	utils.CacheDelete(ctx.Request.Context(), channelListCacheKey)
	utils.Created(ctx, channel)
}

// UpdateChannel changes name or description; only the creator or an admin may do it.
func (c *ChannelController) UpdateChannel(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req channelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	var channel models.Channel
	if err := c.db.WithContext(ctx.Request.Context()).First(&channel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "channel not found")
			return
		}
		respondError(ctx, err, "failed to retrieve channel")
		return
	}
	if !canModify(user, channel.UserID) {
		utils.Error(ctx, http.StatusForbidden, 40310, "you are not authorized to update this channel")
		return
	}
	if !c.applyChannelFields(ctx, &channel, req) {
		return
	}
	if !c.ensureNameFree(ctx, channel.Name, channel.ID) {
		return
	}
	if err := c.db.WithContext(ctx.Request.Context()).Model(&channel).
		Select("name", "description").Updates(&channel).Error; err != nil {
		respondError(ctx, err, "failed to update channel")
		return
	}
	// threads embed their channel
	utils.InvalidateByPrefix(ctx.Request.Context(), utils.ChannelCachePrefix)
	utils.InvalidateByPrefix(ctx.Request.Context(), utils.ThreadCachePrefix)
	utils.Success(ctx, channel)
}

// DeleteChannel removes a channel together with its messages, replies and ratings.
func (c *ChannelController) DeleteChannel(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	messageIDs, err := services.DeleteChannel(ctx.Request.Context(), c.db, id)
	if err != nil {
		respondError(ctx, err, "failed to delete channel")
		return
	}
	utils.InvalidateByPrefix(ctx.Request.Context(), utils.ChannelCachePrefix)
	utils.InvalidateThreads(ctx.Request.Context(), messageIDs...)
	utils.Success(ctx, gin.H{"message": "channel deleted", "deletedMessages": len(messageIDs)})
}

func (c *ChannelController) applyChannelFields(ctx *gin.Context, channel *models.Channel, req channelRequest) bool {
	if req.Name != nil {
		name := utils.SanitizeText(*req.Name)
		if l := runeLen(name); l < 3 || l > 50 {
			utils.Error(ctx, http.StatusBadRequest, 40022, "channel name must be 3-50 characters")
			return false
		}
		channel.Name = name
	}
	if req.Description != nil {
		channel.Description = utils.Sanitize(*req.Description)
	}
	return true
}

func (c *ChannelController) ensureNameFree(ctx *gin.Context, name string, selfID uint) bool {
	var n int64
	if err := c.db.WithContext(ctx.Request.Context()).Model(&models.Channel{}).
		Where("LOWER(name) = ? AND id <> ?", strings.ToLower(name), selfID).
		Count(&n).Error; err != nil {
		respondError(ctx, err, "failed to check channel name")
		return false
	}
	if n > 0 {
		utils.Error(ctx, http.StatusConflict, 40910, "channel name already exists")
		return false
	}
	return true
}
