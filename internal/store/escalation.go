package store

import (
	"context"
	"errors"
	"time"

	"omnichannel-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListEnabledRules returns enabled escalation rules, highest priority label
// first, stable by ID for a deterministic evaluation order. The labels are
// not alphabetical so they are ranked explicitly.
func (s *Store) ListEnabledRules(ctx context.Context) ([]models.EscalationRule, error) {
	var rules []models.EscalationRule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END, id ASC").
		Find(&rules).Error
	return rules, err
}

// ListRules returns every rule, enabled or not.
func (s *Store) ListRules(ctx context.Context) ([]models.EscalationRule, error) {
	var rules []models.EscalationRule
	err := s.db.WithContext(ctx).Order("id ASC").Find(&rules).Error
	return rules, err
}

// GetRule fetches one rule by ID.
func (s *Store) GetRule(ctx context.Context, id string) (*models.EscalationRule, error) {
	var rule models.EscalationRule
	err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// SaveRule inserts or fully replaces a rule by ID.
func (s *Store) SaveRule(ctx context.Context, rule *models.EscalationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Save(rule).Error
}

// SetRuleEnabled toggles a rule without touching its definition.
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.EscalationRule{}).
		Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule. Its past escalation events keep the rule ID for
// audit purposes.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.EscalationRule{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementRuleTriggerCount bumps the monotonic trigger counter.
func (s *Store) IncrementRuleTriggerCount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.EscalationRule{}).
		Where("id = ?", id).
		UpdateColumn("trigger_count", gorm.Expr("trigger_count + 1")).Error
}

// CreateEscalationEvent records one rule firing against one conversation.
func (s *Store) CreateEscalationEvent(ctx context.Context, event *models.EscalationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = models.EscalationPending
	}
	if event.Metadata == "" {
		event.Metadata = "{}"
	}
	return s.db.WithContext(ctx).Create(event).Error
}

// HasUnresolvedEscalation reports whether a pending or in-progress event
// already exists for this (conversation, rule) pair. The engine uses it to
// avoid re-firing the same rule on every tick while the first escalation is
// still being worked.
func (s *Store) HasUnresolvedEscalation(ctx context.Context, conversationID, ruleID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.EscalationEvent{}).
		Where("conversation_id = ? AND rule_id = ? AND status IN ?",
			conversationID, ruleID,
			[]models.EscalationStatus{models.EscalationPending, models.EscalationInProgress}).
		Count(&count).Error
	return count > 0, err
}

// UpdateEscalationStatus transitions an event; resolved_at is stamped when
// the event reaches resolved.
func (s *Store) UpdateEscalationStatus(ctx context.Context, id string, status models.EscalationStatus) error {
	updates := map[string]interface{}{"status": status}
	if status == models.EscalationResolved {
		updates["resolved_at"] = time.Now()
	}
	res := s.db.WithContext(ctx).Model(&models.EscalationEvent{}).
		Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEscalationEvents returns a conversation's escalation history, newest
// first.
func (s *Store) ListEscalationEvents(ctx context.Context, conversationID string) ([]models.EscalationEvent, error) {
	var events []models.EscalationEvent
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("triggered_at DESC").
		Find(&events).Error
	return events, err
}

// ListEscalationCandidates returns the open and pending conversations a
// batch tick evaluates, customers preloaded.
func (s *Store) ListEscalationCandidates(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Where("status IN ?", []models.ConversationStatus{models.StatusOpen, models.StatusPending}).
		Find(&conversations).Error
	return conversations, err
}

// CreateTicket inserts a support ticket linked to an escalation event.
func (s *Store) CreateTicket(ctx context.Context, ticket *models.SupportTicket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Priority == "" {
		ticket.Priority = models.PriorityHigh
	}
	if ticket.Status == "" {
		ticket.Status = "open"
	}
	return s.db.WithContext(ctx).Create(ticket).Error
}

// GetTicketByConversation returns the newest ticket for a conversation.
func (s *Store) GetTicketByConversation(ctx context.Context, conversationID string) (*models.SupportTicket, error) {
	var ticket models.SupportTicket
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}
