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

// MessageController manages messages and serves threads.
type MessageController struct {
	db      *gorm.DB
	threads *services.ThreadService
}

// NewMessageController creates a new MessageController instance.
func NewMessageController(db *gorm.DB, threads *services.ThreadService) *MessageController {
	return &MessageController{db: db, threads: threads}
}

// messageRequest binds JSON bodies and multipart forms alike.
type messageRequest struct {
	Title     *string  `json:"title" form:"title"`
	Content   *string  `json:"content" form:"content"`
	ChannelID uint     `json:"channelId" form:"channelId"`
	Tags      []string `json:"tags" form:"tags"`
}

// ListMessages returns all messages, newest first, for administrators.
func (m *MessageController) ListMessages(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	tx := m.db.WithContext(ctx.Request.Context())

	var total int64
	if err := tx.Model(&models.Message{}).Count(&total).Error; err != nil {
		respondError(ctx, err, "failed to count messages")
		return
	}
	var msgs []models.Message
	if err := tx.Preload("Author").Preload("Channel").
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&msgs).Error; err != nil {
		respondError(ctx, err, "failed to retrieve messages")
		return
	}
	items, err := m.threads.SummariseMessages(ctx.Request.Context(), msgs)
	if err != nil {
		respondError(ctx, err, "failed to retrieve messages")
		return
	}
	utils.Success(ctx, gin.H{"items": items, "pagination": pagination(page, pageSize, total)})
}

// ListChannelMessages returns the messages of one channel with their rating totals.
func (m *MessageController) ListChannelMessages(ctx *gin.Context) {
	channelID, ok := parseID(ctx, "channelId")
	if !ok {
		return
	}
	items, err := m.threads.ListChannelMessages(ctx.Request.Context(), channelID)
	if err != nil {
		respondError(ctx, err, "failed to retrieve messages")
		return
	}
	utils.Success(ctx, items)
}

// GetMessage returns the message with its full reply thread.
func (m *MessageController) GetMessage(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	key := utils.ThreadCacheKey(id)
	if b, ok := utils.CacheGetBytes(ctx.Request.Context(), key); ok {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}

	thread, err := m.threads.GetMessageThread(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "failed to retrieve message")
		return
	}
	resp := utils.JSONResponse{Code: 0, Message: "success", Data: thread}
	if b, err := json.Marshal(resp); err == nil {
		utils.CacheSetJSON(ctx.Request.Context(), key, json.RawMessage(b), utils.ThreadCacheTTL)
	}
	ctx.JSON(http.StatusOK, resp)
}

// CreateMessage posts a message into a channel.
func (m *MessageController) CreateMessage(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req messageRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	if req.Title == nil || req.Content == nil || req.ChannelID == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title, content and channelId are required")
		return
	}

	msg := models.Message{UserID: &user.ID, ChannelID: req.ChannelID, Tags: []string{}}
	if !applyMessageFields(ctx, &msg, req) {
		return
	}

	var n int64
	if err := m.db.WithContext(ctx.Request.Context()).Model(&models.Channel{}).
		Where("id = ?", req.ChannelID).Count(&n).Error; err != nil {
		respondError(ctx, err, "failed to check channel")
		return
	}
	if n == 0 {
		utils.Error(ctx, http.StatusNotFound, 40410, "channel not found")
		return
	}

	screenshot, ok := saveUpload(ctx, "screenshot")
	if !ok {
		return
	}
	msg.Screenshot = screenshot

	if err := m.db.WithContext(ctx.Request.Context()).Create(&msg).Error; err != nil {
		respondError(ctx, err, "failed to create message")
		return
	}
	msg.Author = user
	utils.Created(ctx, services.MessageSummary{Message: msg})
}

// UpdateMessage edits title, content, tags or screenshot; owner or admin only.
func (m *MessageController) UpdateMessage(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req messageRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	var msg models.Message
	if err := m.db.WithContext(ctx.Request.Context()).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "message not found")
			return
		}
		respondError(ctx, err, "failed to retrieve message")
		return
	}
	if !canModify(user, msg.UserID) {
		utils.Error(ctx, http.StatusForbidden, 40320, "you are not authorized to update this message")
		return
	}
	if req.ChannelID != 0 && req.ChannelID != msg.ChannelID {
		utils.Error(ctx, http.StatusBadRequest, 40023, "a message cannot be moved to another channel")
		return
	}
	if !applyMessageFields(ctx, &msg, req) {
		return
	}
	screenshot, ok := saveUpload(ctx, "screenshot")
	if !ok {
		return
	}
	if screenshot != "" {
		msg.Screenshot = screenshot
	}

	if err := m.db.WithContext(ctx.Request.Context()).Model(&msg).
		Select("title", "content", "tags", "screenshot").Updates(&msg).Error; err != nil {
		respondError(ctx, err, "failed to update message")
		return
	}
	utils.InvalidateThreads(ctx.Request.Context(), msg.ID)
	utils.Success(ctx, msg)
}

// DeleteMessage removes a message with its replies and ratings.
func (m *MessageController) DeleteMessage(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := services.DeleteMessage(ctx.Request.Context(), m.db, id); err != nil {
		respondError(ctx, err, "failed to delete message")
		return
	}
	utils.InvalidateThreads(ctx.Request.Context(), id)
	utils.Success(ctx, gin.H{"message": "message deleted"})
}

// RateMessage records the caller's +1/-1 vote on a message.
func (m *MessageController) RateMessage(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if rateTarget(ctx, m.db, models.TargetMessage, id) {
		utils.InvalidateThreads(ctx.Request.Context(), id)
	}
}

func applyMessageFields(ctx *gin.Context, msg *models.Message, req messageRequest) bool {
	if req.Title != nil {
		title := utils.SanitizeText(*req.Title)
		if l := runeLen(title); l < 3 || l > 100 {
			utils.Error(ctx, http.StatusBadRequest, 40022, "title must be 3-100 characters")
			return false
		}
		msg.Title = title
	}
	if req.Content != nil {
		content := utils.Sanitize(*req.Content)
		if strings.TrimSpace(content) == "" {
			utils.Error(ctx, http.StatusBadRequest, 40024, "content cannot be empty")
			return false
		}
		msg.Content = content
	}
	if req.Tags != nil {
		msg.Tags = normaliseTags(req.Tags)
	}
	return true
}
