package store

import (
	"context"
	"errors"
	"fmt"

	"omnichannel-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateAgent inserts an agent, filling in an ID when absent.
func (s *Store) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Skills == "" {
		agent.Skills = "[]"
	}
	if agent.Languages == "" {
		agent.Languages = "[]"
	}
	return s.db.WithContext(ctx).Create(agent).Error
}

// GetAgent fetches one agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.WithContext(ctx).First(&agent, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// UpdateAgentStatus flips an agent's presence status.
func (s *Store) UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Agent{}).
		Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignAgent picks the least-loaded online agent matching the role hint
// (the agent's department or one of its skills) and assigns it to the
// conversation. The capacity check and the slot claim happen in one
// conditional UPDATE, so two concurrent assignments can not both squeeze
// into an agent's last slot. Returns ErrNoAgentAvailable when nobody
// qualifies.
func (s *Store) AssignAgent(ctx context.Context, conversationID string, roleHint string) (*models.Agent, error) {
	var candidates []models.Agent
	err := s.db.WithContext(ctx).
		Where("(department = ? OR skills LIKE ?) AND active = ? AND status = ? AND current_conversations < max_concurrent",
			roleHint, `%"`+roleHint+`"%`, true, models.AgentOnline).
		Order("current_conversations ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		agent := &candidates[i]
		res := s.db.WithContext(ctx).Model(&models.Agent{}).
			Where("id = ? AND current_conversations < max_concurrent", agent.ID).
			UpdateColumn("current_conversations", gorm.Expr("current_conversations + 1"))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// Filled up between the SELECT and the claim; try the next one.
			continue
		}

		if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("assigned_agent_id", agent.ID).Error; err != nil {
			return nil, err
		}
		if err := s.LogActivity(ctx, conversationID, &agent.ID, "agent_assigned",
			fmt.Sprintf("assigned to %s (%s)", agent.Name, agent.Role), nil); err != nil {
			return nil, err
		}

		agent.CurrentConversations++
		return agent, nil
	}
	return nil, ErrNoAgentAvailable
}
