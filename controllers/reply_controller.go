package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
	"github.com/cppla/codechannels/services"
	"github.com/cppla/codechannels/utils"
)

// ReplyController manages replies and serves reply subtrees.
type ReplyController struct {
	db      *gorm.DB
	threads *services.ThreadService
}

// NewReplyController creates a new ReplyController instance.
func NewReplyController(db *gorm.DB, threads *services.ThreadService) *ReplyController {
	return &ReplyController{db: db, threads: threads}
}

type replyRequest struct {
	Content       *string `json:"content" form:"content"`
	MessageID     uint    `json:"messageId" form:"messageId"`
	ParentReplyID *uint   `json:"parentReplyId" form:"parentReplyId"`
}

// ListReplies returns all replies, newest first, for administrators.
func (r *ReplyController) ListReplies(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	tx := r.db.WithContext(ctx.Request.Context())

	var total int64
	if err := tx.Model(&models.Reply{}).Count(&total).Error; err != nil {
		respondError(ctx, err, "failed to count replies")
		return
	}
	replies := []models.Reply{}
	if err := tx.Preload("Author").Preload("Message").
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&replies).Error; err != nil {
		respondError(ctx, err, "failed to retrieve replies")
		return
	}
	utils.Success(ctx, gin.H{"items": replies, "pagination": pagination(page, pageSize, total)})
}

// ListMessageReplies returns the reply forest of a message.
func (r *ReplyController) ListMessageReplies(ctx *gin.Context) {
	messageID, ok := parseID(ctx, "messageId")
	if !ok {
		return
	}
	nodes, err := r.threads.MessageReplies(ctx.Request.Context(), messageID)
	if err != nil {
		respondError(ctx, err, "failed to retrieve replies")
		return
	}
	utils.Success(ctx, nodes)
}

// ListChildReplies returns the nested children of one reply.
func (r *ReplyController) ListChildReplies(ctx *gin.Context) {
	replyID, ok := parseID(ctx, "replyId")
	if !ok {
		return
	}
	nodes, err := r.threads.BuildSubtree(ctx.Request.Context(), replyID)
	if err != nil {
		respondError(ctx, err, "failed to retrieve replies")
		return
	}
	utils.Success(ctx, nodes)
}

// CreateReply answers a message, or another reply of the same message.
func (r *ReplyController) CreateReply(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req replyRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	if req.ParentReplyID != nil && *req.ParentReplyID == 0 {
		req.ParentReplyID = nil
	}
	if req.Content == nil || req.MessageID == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40021, "content and messageId are required")
		return
	}
	content := utils.Sanitize(*req.Content)
	if strings.TrimSpace(content) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40024, "content cannot be empty")
		return
	}
	if err := services.CheckReplyTarget(ctx.Request.Context(), r.db, req.MessageID, req.ParentReplyID); err != nil {
		respondError(ctx, err, "failed to check reply target")
		return
	}

	screenshot, ok := saveUpload(ctx, "screenshot")
	if !ok {
		return
	}
	reply := models.Reply{
		Content:       content,
		Screenshot:    screenshot,
		UserID:        &user.ID,
		MessageID:     req.MessageID,
		ParentReplyID: req.ParentReplyID,
	}
	if err := r.db.WithContext(ctx.Request.Context()).Create(&reply).Error; err != nil {
		respondError(ctx, err, "failed to create reply")
		return
	}
	reply.Author = user
	utils.InvalidateThreads(ctx.Request.Context(), reply.MessageID)
	utils.Created(ctx, &services.ReplyNode{Reply: reply, ChildReplies: []*services.ReplyNode{}})
}

// UpdateReply edits content or screenshot; owner or admin only. The message
// and parent of a reply never change.
func (r *ReplyController) UpdateReply(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req replyRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	var reply models.Reply
	if err := r.db.WithContext(ctx.Request.Context()).First(&reply, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40430, "reply not found")
			return
		}
		respondError(ctx, err, "failed to retrieve reply")
		return
	}
	if !canModify(user, reply.UserID) {
		utils.Error(ctx, http.StatusForbidden, 40330, "you are not authorized to update this reply")
		return
	}
	if req.MessageID != 0 && req.MessageID != reply.MessageID {
		utils.Error(ctx, http.StatusBadRequest, 40025, "messageId cannot be changed")
		return
	}
	if req.ParentReplyID != nil && *req.ParentReplyID != 0 &&
		(reply.ParentReplyID == nil || *reply.ParentReplyID != *req.ParentReplyID) {
		utils.Error(ctx, http.StatusBadRequest, 40026, "parentReplyId cannot be changed")
		return
	}
	if req.Content != nil {
		content := utils.Sanitize(*req.Content)
		if strings.TrimSpace(content) == "" {
			utils.Error(ctx, http.StatusBadRequest, 40024, "content cannot be empty")
			return
		}
		reply.Content = content
	}
	screenshot, ok := saveUpload(ctx, "screenshot")
	if !ok {
		return
	}
	if screenshot != "" {
		reply.Screenshot = screenshot
	}

	if err := r.db.WithContext(ctx.Request.Context()).Model(&reply).
		Select("content", "screenshot").Updates(&reply).Error; err != nil {
		respondError(ctx, err, "failed to update reply")
		return
	}
	utils.InvalidateThreads(ctx.Request.Context(), reply.MessageID)
	utils.Success(ctx, reply)
}

// DeleteReply removes a reply, its descendants and their ratings.
func (r *ReplyController) DeleteReply(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	messageID, err := services.DeleteReply(ctx.Request.Context(), r.db, id)
	if err != nil {
		respondError(ctx, err, "failed to delete reply")
		return
	}
	utils.InvalidateThreads(ctx.Request.Context(), messageID)
	utils.Success(ctx, gin.H{"message": "reply deleted"})
}

// RateReply records the caller's +1/-1 vote on a reply.
func (r *ReplyController) RateReply(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if !rateTarget(ctx, r.db, models.TargetReply, id) {
		return
	}
	var reply models.Reply
	if err := r.db.WithContext(ctx.Request.Context()).Select("id", "message_id").First(&reply, id).Error; err == nil {
		utils.InvalidateThreads(ctx.Request.Context(), reply.MessageID)
	}
}
