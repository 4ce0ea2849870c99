package store

import (
	"context"
	"time"

	"omnichannel-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppendMessage inserts a message and touches the parent conversation's
// updated_at in the same transaction, so recency ordering tracks message
// activity rather than metadata edits.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Type == "" {
		msg.Type = models.TypeText
	}
	if msg.Metadata == "" {
		msg.Metadata = "{}"
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			UpdateColumn("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// MarkMessageRead stamps read_at once; repeated calls keep the first stamp.
func (s *Store) MarkMessageRead(ctx context.Context, messageID string) error {
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read_at IS NULL", messageID).
		UpdateColumn("read_at", time.Now()).Error
}

// MarkMessageDelivered stamps delivered_at once.
func (s *Store) MarkMessageDelivered(ctx context.Context, messageID string) error {
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND delivered_at IS NULL", messageID).
		UpdateColumn("delivered_at", time.Now()).Error
}
