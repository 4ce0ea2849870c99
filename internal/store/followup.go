package store

import (
	"context"
	"errors"
	"time"

	"omnichannel-gateway/internal/models"

	"gorm.io/gorm"
)

// EnqueueFollowUp schedules a deferred outbound WhatsApp message.
func (s *Store) EnqueueFollowUp(ctx context.Context, followUp *models.FollowUp) error {
	if followUp.Status == "" {
		followUp.Status = "pending"
	}
	return s.db.WithContext(ctx).Create(followUp).Error
}

// DueFollowUps lists pending follow-ups whose scheduled time has passed,
// oldest first, for the delivery worker to drain.
func (s *Store) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]models.FollowUp, error) {
	if limit <= 0 {
		limit = 50
	}
	var followUps []models.FollowUp
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", "pending", now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&followUps).Error
	return followUps, err
}

// MarkFollowUpSent stamps a follow-up as delivered.
func (s *Store) MarkFollowUpSent(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.FollowUp{}).
		Where("id = ? AND status = ?", id, "pending").
		Updates(map[string]interface{}{"status": "sent", "sent_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTemplateByName resolves a named outbound template.
func (s *Store) GetTemplateByName(ctx context.Context, name string) (*models.MessageTemplate, error) {
	var tmpl models.MessageTemplate
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// SaveTemplate inserts or replaces a template by ID.
func (s *Store) SaveTemplate(ctx context.Context, tmpl *models.MessageTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = tmpl.Name
	}
	return s.db.WithContext(ctx).Save(tmpl).Error
}
