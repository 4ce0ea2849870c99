package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"omnichannel-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationDetail joins a conversation with its customer, assigned agent
// and full ordered message history.
type ConversationDetail struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
	UnreadCount  int64               `json:"unread_count"`
}

// ConversationSummary is one row of the active-conversation list.
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	LastMessage  *models.Message     `json:"last_message,omitempty"`
	UnreadCount  int64               `json:"unread_count"`
}

// CreateConversation inserts a conversation, filling in ID and defaults.
func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Status == "" {
		conv.Status = models.StatusOpen
	}
	if conv.Priority == "" {
		conv.Priority = models.PriorityNormal
	}
	if conv.Tags == "" {
		conv.Tags = "[]"
	}
	if conv.Metadata == "" {
		conv.Metadata = "{}"
	}
	return s.db.WithContext(ctx).Create(conv).Error
}

// GetConversation fetches one conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetOpenConversationByChannelThread resolves the live conversation for a
// (channel, thread) tuple. Closed and resolved conversations never match, so
// new inbound traffic after a close starts a fresh conversation instead of
// reviving the old one.
func (s *Store) GetOpenConversationByChannelThread(ctx context.Context, channel models.Channel, threadID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("channel = ? AND channel_thread_id = ? AND status IN ?",
			channel, threadID, []models.ConversationStatus{models.StatusOpen, models.StatusPending}).
		Order("created_at DESC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationWithDetails joins customer, assigned agent and the full
// message history in creation order; unread count is the number of inbound
// messages never marked read.
func (s *Store) GetConversationWithDetails(ctx context.Context, id string) (*ConversationDetail, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Agent").
		First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	unread, err := s.unreadCount(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ConversationDetail{Conversation: conv, Messages: messages, UnreadCount: unread}, nil
}

// ListActiveConversations returns open and pending conversations, newest
// activity first, each annotated with the last message and unread count.
// A non-nil agentID narrows the list to that agent's assignments.
func (s *Store) ListActiveConversations(ctx context.Context, agentID *string, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.db.WithContext(ctx).
		Preload("Customer").
		Where("status IN ?", []models.ConversationStatus{models.StatusOpen, models.StatusPending}).
		Order("updated_at DESC").
		Limit(limit)
	if agentID != nil {
		query = query.Where("assigned_agent_id = ?", *agentID)
	}

	var conversations []models.Conversation
	if err := query.Find(&conversations).Error; err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summary := ConversationSummary{Conversation: conv}

		var last models.Message
		err := s.db.WithContext(ctx).
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").
			First(&last).Error
		if err == nil {
			summary.LastMessage = &last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		unread, err := s.unreadCount(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UpdateConversationStatus applies a status transition, stamps closed_at on
// close, releases the assigned agent's slot, and appends an audit entry.
func (s *Store) UpdateConversationStatus(ctx context.Context, id string, status models.ConversationStatus, actingAgentID *string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.First(&conv, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		updates := map[string]interface{}{"status": status, "updated_at": time.Now()}
		if status == models.StatusClosed && conv.ClosedAt == nil {
			now := time.Now()
			updates["closed_at"] = now
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		if status == models.StatusClosed && conv.AssignedAgentID != nil {
			if err := tx.Model(&models.Agent{}).
				Where("id = ? AND current_conversations > 0", *conv.AssignedAgentID).
				UpdateColumn("current_conversations", gorm.Expr("current_conversations - 1")).Error; err != nil {
				return err
			}
		}

		return s.logActivityTx(tx, id, actingAgentID, "status_change",
			fmt.Sprintf("status changed from %s to %s", conv.Status, status), nil)
	})
}

// UpdateConversationPriority changes priority and records who (or which rule)
// did it.
func (s *Store) UpdateConversationPriority(ctx context.Context, id string, priority models.Priority, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).Where("id = ?", id).
			Updates(map[string]interface{}{"priority": priority, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return s.logActivityTx(tx, id, nil, "priority_change",
			fmt.Sprintf("priority set to %s (%s)", priority, reason), nil)
	})
}

// LogActivity appends one audit-trail entry. Entries are never updated or
// deleted.
func (s *Store) LogActivity(ctx context.Context, conversationID string, agentID *string, action, description string, meta map[string]interface{}) error {
	return s.logActivityTx(s.db.WithContext(ctx), conversationID, agentID, action, description, meta)
}

func (s *Store) logActivityTx(tx *gorm.DB, conversationID string, agentID *string, action, description string, meta map[string]interface{}) error {
	return tx.Create(&models.ActivityLog{
		ConversationID: conversationID,
		AgentID:        agentID,
		Action:         action,
		Description:    description,
		Metadata:       models.EncodeMeta(meta),
	}).Error
}

// ListActivity returns the audit trail for a conversation, oldest first.
func (s *Store) ListActivity(ctx context.Context, conversationID string) ([]models.ActivityLog, error) {
	var entries []models.ActivityLog
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (s *Store) unreadCount(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND direction = ? AND read_at IS NULL",
			conversationID, models.DirectionInbound).
		Count(&count).Error
	return count, err
}
