package escalation

import (
	"context"
	"errors"
	"fmt"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"

	"go.uber.org/zap"
)

// ActionType enumerates the executable action kinds.
type ActionType string

const (
	ActChangePriority   ActionType = "change_priority"
	ActAssignAgent      ActionType = "assign_agent"
	ActSendNotification ActionType = "send_notification"
	ActCreateTicket     ActionType = "create_ticket"
	ActAutoResponse     ActionType = "auto_response"
)

// Action is one step of a rule's response, executed in declared order.
type Action struct {
	Type     ActionType      `json:"type"`
	Priority models.Priority `json:"priority,omitempty"` // change_priority
	Role     string          `json:"role,omitempty"`     // assign_agent role hint
	Target   string          `json:"target,omitempty"`   // send_notification target
	Message  string          `json:"message,omitempty"`  // notification / auto-response text
}

// executeAction runs one action against the store and notification paths.
// Failures return an error for the engine to log; they never stop the
// remaining actions of the rule.
func (e *Engine) executeAction(ctx context.Context, action Action, rule *models.EscalationRule, event *models.EscalationEvent, cc *ConversationContext) error {
	conv := cc.Conversation

	switch action.Type {
	case ActChangePriority:
		return e.store.UpdateConversationPriority(ctx, conv.ID, action.Priority, "rule "+rule.Name)

	case ActAssignAgent:
		agent, err := e.store.AssignAgent(ctx, conv.ID, action.Role)
		if errors.Is(err, store.ErrNoAgentAvailable) {
			// Nobody free is an acceptable outcome, not a failure.
			e.logger.Info("no agent available for escalation",
				zap.String("conversation_id", conv.ID), zap.String("role", action.Role))
			return nil
		}
		if err != nil {
			return err
		}
		e.logger.Info("conversation assigned by escalation",
			zap.String("conversation_id", conv.ID), zap.String("agent_id", agent.ID))
		return nil

	case ActSendNotification:
		customerName := ""
		if cc.Customer != nil {
			customerName = cc.Customer.Name
		}
		_, err := e.notifier.Notify("escalation_notification", map[string]interface{}{
			"target":          action.Target,
			"message":         action.Message,
			"conversation_id": conv.ID,
			"customer_name":   customerName,
			"channel":         string(conv.Channel),
			"event_id":        event.ID,
		})
		if err != nil {
			// Transport fault: the escalation itself stands, delivery of the
			// ping is best-effort.
			e.logger.Warn("escalation notification not delivered",
				zap.String("target", action.Target), zap.Error(err))
		}
		return nil

	case ActCreateTicket:
		return e.store.CreateTicket(ctx, &models.SupportTicket{
			ConversationID:    conv.ID,
			EscalationEventID: event.ID,
			Subject:           fmt.Sprintf("Escalated: %s", conv.Subject),
			Priority:          models.PriorityHigh,
			Status:            "open",
		})

	case ActAutoResponse:
		// Recorded as store state; whichever process drains outbound
		// messages owns actual channel delivery.
		return e.store.AppendMessage(ctx, &models.Message{
			ConversationID: conv.ID,
			CustomerID:     conv.CustomerID,
			Channel:        conv.Channel,
			Direction:      models.DirectionOutbound,
			Content:        action.Message,
			Automated:      true,
			SenderName:     "escalation-engine",
			Metadata:       models.EncodeMeta(map[string]interface{}{"rule_id": rule.ID}),
		})

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}
