package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/codechannels/models"
)

// CheckReplyTarget verifies that a new reply can be attached to messageID and,
// when parentReplyID is set, below that reply. The parent must belong to the
// same message, which keeps every message's replies a single forest.
func CheckReplyTarget(ctx context.Context, db *gorm.DB, messageID uint, parentReplyID *uint) error {
	tx := db.WithContext(ctx)
	var n int64
	if err := tx.Model(&models.Message{}).Where("id = ?", messageID).Count(&n).Error; err != nil {
		return fmt.Errorf("check message %d: %w", messageID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	if parentReplyID == nil {
		return nil
	}

	var parent models.Reply
	if err := tx.Select("id", "message_id").First(&parent, *parentReplyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: parent reply %d", ErrNotFound, *parentReplyID)
		}
		return fmt.Errorf("load parent reply %d: %w", *parentReplyID, err)
	}
	if parent.MessageID != messageID {
		return fmt.Errorf("%w: parent reply %d belongs to message %d, not %d",
			ErrValidation, parent.ID, parent.MessageID, messageID)
	}
	return nil
}
