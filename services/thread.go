package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
)

// MessageThread is a message with its rating total and full reply forest.
type MessageThread struct {
	models.Message
	TotalRating int          `json:"totalRating"`
	Replies     []*ReplyNode `json:"replies"`
}

// MessageSummary is a message with its rating total, used in listings.
type MessageSummary struct {
	models.Message
	TotalRating int `json:"totalRating"`
}

// ThreadService assembles threads from the store. It holds no mutable state
// and is safe for concurrent use.
type ThreadService struct {
	db *gorm.DB
}

// NewThreadService constructs the service.
func NewThreadService(db *gorm.DB) *ThreadService {
	return &ThreadService{db: db}
}

// GetMessageThread returns the message identified by id with author, channel,
// rating total and its replies nested to full depth. The store is queried a
// fixed number of times whatever the size of the thread.
func (s *ThreadService) GetMessageThread(ctx context.Context, id uint) (*MessageThread, error) {
	tx := s.db.WithContext(ctx)

	var msg models.Message
	if err := tx.Preload("Author").Preload("Channel").First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load message %d: %w", id, err)
	}

	replies, err := s.loadReplies(ctx, id)
	if err != nil {
		return nil, err
	}

	var ratings []models.Rating
	if err := tx.Where("(target_type = ? AND target_id = ?) OR (target_type = ? AND target_id IN (?))",
		models.TargetMessage, id,
		models.TargetReply, s.db.Model(&models.Reply{}).Select("id").Where("message_id = ?", id),
	).Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("load ratings of message %d: %w", id, err)
	}

	var own []models.Rating
	for _, r := range ratings {
		if r.TargetType == models.TargetMessage {
			own = append(own, r)
		}
	}

	return &MessageThread{
		Message:     msg,
		TotalRating: TotalRating(own),
		Replies:     IndexReplies(replies, ratings).Children(nil),
	}, nil
}

// BuildSubtree returns the ordered children of a reply, each nested to full depth.
func (s *ThreadService) BuildSubtree(ctx context.Context, parentReplyID uint) ([]*ReplyNode, error) {
	var parent models.Reply
	if err := s.db.WithContext(ctx).Select("id", "message_id").First(&parent, parentReplyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reply %d", ErrNotFound, parentReplyID)
		}
		return nil, fmt.Errorf("load reply %d: %w", parentReplyID, err)
	}
	ix, err := s.messageIndex(ctx, parent.MessageID)
	if err != nil {
		return nil, err
	}
	return ix.Children(&parentReplyID), nil
}

// MessageReplies returns the top-level replies of a message with nested children.
func (s *ThreadService) MessageReplies(ctx context.Context, messageID uint) ([]*ReplyNode, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", messageID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check message %d: %w", messageID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	ix, err := s.messageIndex(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return ix.Children(nil), nil
}

// ListChannelMessages returns the messages of a channel newest first with their rating totals.
func (s *ThreadService) ListChannelMessages(ctx context.Context, channelID uint) ([]MessageSummary, error) {
	tx := s.db.WithContext(ctx)
	var n int64
	if err := tx.Model(&models.Channel{}).Where("id = ?", channelID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check channel %d: %w", channelID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: channel %d", ErrNotFound, channelID)
	}

	var msgs []models.Message
	if err := tx.Preload("Author").
		Where("channel_id = ?", channelID).
		Order("created_at DESC").Order("id DESC").
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages of channel %d: %w", channelID, err)
	}
	return s.summarise(ctx, msgs)
}

// SummariseMessages attaches rating totals to already loaded messages.
func (s *ThreadService) SummariseMessages(ctx context.Context, msgs []models.Message) ([]MessageSummary, error) {
	return s.summarise(ctx, msgs)
}

func (s *ThreadService) summarise(ctx context.Context, msgs []models.Message) ([]MessageSummary, error) {
	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	totals, err := RatingTotals(ctx, s.db, models.TargetMessage, ids)
	if err != nil {
		return nil, err
	}
	out := make([]MessageSummary, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageSummary{Message: m, TotalRating: totals[m.ID]})
	}
	return out, nil
}

// messageIndex loads every reply of a message and their ratings in two queries.
func (s *ThreadService) messageIndex(ctx context.Context, messageID uint) (*ReplyIndex, error) {
	replies, err := s.loadReplies(ctx, messageID)
	if err != nil {
		return nil, err
	}
	var ratings []models.Rating
	if err := s.db.WithContext(ctx).
		Where("target_type = ? AND target_id IN (?)",
			models.TargetReply, s.db.Model(&models.Reply{}).Select("id").Where("message_id = ?", messageID)).
		Find(&ratings).Error; err != nil {
		return nil, fmt.Errorf("load reply ratings of message %d: %w", messageID, err)
	}
	return IndexReplies(replies, ratings), nil
}

func (s *ThreadService) loadReplies(ctx context.Context, messageID uint) ([]models.Reply, error) {
	var replies []models.Reply
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("message_id = ?", messageID).
		Order("created_at ASC").Order("id ASC").
		Find(&replies).Error; err != nil {
		return nil, fmt.Errorf("load replies of message %d: %w", messageID, err)
	}
	return replies, nil
}
