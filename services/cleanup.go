package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
)

// DeleteReply removes a reply, every reply below it and all ratings on them
// in one transaction. It returns the id of the message the reply belonged to.
func DeleteReply(ctx context.Context, db *gorm.DB, replyID uint) (uint, error) {
	var messageID uint
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reply models.Reply
		if err := tx.Select("id", "message_id").First(&reply, replyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: reply %d", ErrNotFound, replyID)
			}
			return fmt.Errorf("load reply %d: %w", replyID, err)
		}
		messageID = reply.MessageID

		var siblings []models.Reply
		if err := tx.Select("id", "parent_reply_id", "created_at").
			Where("message_id = ?", reply.MessageID).
			Find(&siblings).Error; err != nil {
			return fmt.Errorf("load replies of message %d: %w", reply.MessageID, err)
		}
		ids := DescendantIDs(siblings, replyID)

		if err := tx.Where("target_type = ? AND target_id IN ?", models.TargetReply, ids).
			Delete(&models.Rating{}).Error; err != nil {
			return fmt.Errorf("delete reply ratings: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Reply{}).Error; err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
		return nil
	})
	return messageID, err
}

// DeleteMessage removes a message with all of its replies and every rating on them.
func DeleteMessage(ctx context.Context, db *gorm.DB, messageID uint) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Message{}).Where("id = ?", messageID).Count(&n).Error; err != nil {
			return fmt.Errorf("check message %d: %w", messageID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
		}
		return deleteMessagesTx(tx, []uint{messageID})
	})
}

// DeleteChannel removes a channel and, before it, every message it contains.
// It returns the ids of the deleted messages.
func DeleteChannel(ctx context.Context, db *gorm.DB, channelID uint) ([]uint, error) {
	var messageIDs []uint
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Channel{}).Where("id = ?", channelID).Count(&n).Error; err != nil {
			return fmt.Errorf("check channel %d: %w", channelID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: channel %d", ErrNotFound, channelID)
		}
		if err := tx.Model(&models.Message{}).Where("channel_id = ?", channelID).
			Pluck("id", &messageIDs).Error; err != nil {
			return fmt.Errorf("list messages of channel %d: %w", channelID, err)
		}
		if err := deleteMessagesTx(tx, messageIDs); err != nil {
			return err
		}
		if err := tx.Delete(&models.Channel{}, channelID).Error; err != nil {
			return fmt.Errorf("delete channel %d: %w", channelID, err)
		}
		return nil
	})
	return messageIDs, err
}

func deleteMessagesTx(tx *gorm.DB, messageIDs []uint) error {
	if len(messageIDs) == 0 {
		return nil
	}
	var replyIDs []uint
	if err := tx.Model(&models.Reply{}).Where("message_id IN ?", messageIDs).
		Pluck("id", &replyIDs).Error; err != nil {
		return fmt.Errorf("list replies: %w", err)
	}
	if len(replyIDs) > 0 {
		if err := tx.Where("target_type = ? AND target_id IN ?", models.TargetReply, replyIDs).
			Delete(&models.Rating{}).Error; err != nil {
			return fmt.Errorf("delete reply ratings: %w", err)
		}
		if err := tx.Where("id IN ?", replyIDs).Delete(&models.Reply{}).Error; err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
	}
	if err := tx.Where("target_type = ? AND target_id IN ?", models.TargetMessage, messageIDs).
		Delete(&models.Rating{}).Error; err != nil {
		return fmt.Errorf("delete message ratings: %w", err)
	}
	if err := tx.Where("id IN ?", messageIDs).Delete(&models.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}
