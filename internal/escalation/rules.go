package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"
)

// DefaultRules is the seedable baseline policy. Rules are data: admins can
// edit or disable any of these afterwards without touching code.
func DefaultRules() []models.EscalationRule {
	return []models.EscalationRule{
		rule("slow_response", "Slow response time", models.PriorityHigh,
			[]Condition{
				{Type: CondResponseTime, Operator: OpGt, Threshold: 30, Unit: "minutes"},
			},
			[]Action{
				{Type: ActChangePriority, Priority: models.PriorityHigh},
				{Type: ActSendNotification, Target: "supervisor", Message: "Conversation has been waiting over 30 minutes for a reply"},
			}),
		rule("vip_customer", "VIP customer waiting", models.PriorityUrgent,
			[]Condition{
				{Type: CondCustomerTier, Operator: OpEq, Value: "vip"},
				{Type: CondResponseTime, Operator: OpGt, Threshold: 5, Unit: "minutes"},
			},
			[]Action{
				{Type: ActChangePriority, Priority: models.PriorityUrgent},
				{Type: ActAssignAgent, Role: "senior_agent"},
				{Type: ActSendNotification, Target: "manager", Message: "VIP customer waiting over 5 minutes"},
			}),
		rule("negative_sentiment", "Complaint with negative sentiment", models.PriorityHigh,
			[]Condition{
				{Type: CondKeyword, Operator: OpContains, Value: "cancel|complaint|dissatisfied|problem|bad|terrible"},
				{Type: CondSentiment, Operator: OpLt, Threshold: 0.3},
			},
			[]Action{
				{Type: ActChangePriority, Priority: models.PriorityHigh},
				{Type: ActAssignAgent, Role: "support_specialist"},
				{Type: ActAutoResponse, Message: "We're sorry to hear about your experience. A specialist is looking into this right now and will be with you shortly."},
			}),
		rule("emergency_keywords", "Emergency keywords", models.PriorityUrgent,
			[]Condition{
				{Type: CondKeyword, Operator: OpContains, Value: "emergency|urgent|help|flight cancelled|lost|accident"},
			},
			[]Action{
				{Type: ActChangePriority, Priority: models.PriorityUrgent},
				{Type: ActAssignAgent, Role: "emergency_team"},
				{Type: ActSendNotification, Target: "emergency_manager", Message: "Emergency keywords detected in conversation"},
				{Type: ActCreateTicket},
			}),
		rule("multiple_attempts", "Multiple unanswered attempts", models.PriorityHigh,
			[]Condition{
				{Type: CondMessageCount, Operator: OpGt, Threshold: 5},
				{Type: CondResponseTime, Operator: OpGt, Threshold: 60, Unit: "minutes"},
			},
			[]Action{
				{Type: ActChangePriority, Priority: models.PriorityHigh},
				{Type: ActSendNotification, Target: "supervisor", Message: "Customer has sent multiple messages without a reply for over an hour"},
			}),
	}
}

func rule(id, name string, priority models.Priority, conditions []Condition, actions []Action) models.EscalationRule {
	condJSON, _ := json.Marshal(conditions)
	actJSON, _ := json.Marshal(actions)
	return models.EscalationRule{
		ID:         id,
		Name:       name,
		Priority:   priority,
		Conditions: string(condJSON),
		Actions:    string(actJSON),
		Enabled:    true,
	}
}

// ValidateRule rejects rules whose condition or action payloads would be
// silently skipped at evaluation time.
func ValidateRule(r *models.EscalationRule) error {
	var conditions []Condition
	if err := json.Unmarshal([]byte(r.Conditions), &conditions); err != nil {
		return fmt.Errorf("decode conditions: %w", err)
	}
	if len(conditions) == 0 {
		return errors.New("rule must declare at least one condition")
	}
	for i, cond := range conditions {
		switch cond.Type {
		case CondResponseTime, CondMessageCount, CondKeyword, CondCustomerTier, CondChannel, CondSentiment:
		default:
			return fmt.Errorf("condition %d: unknown type %q", i, cond.Type)
		}
		switch cond.Operator {
		case OpGt, OpGte, OpLt, OpLte, OpEq, OpContains, OpNotContains:
		default:
			return fmt.Errorf("condition %d: unknown operator %q", i, cond.Operator)
		}
	}

	var actions []Action
	if err := json.Unmarshal([]byte(r.Actions), &actions); err != nil {
		return fmt.Errorf("decode actions: %w", err)
	}
	if len(actions) == 0 {
		return errors.New("rule must declare at least one action")
	}
	for i, act := range actions {
		switch act.Type {
		case ActChangePriority, ActAssignAgent, ActSendNotification, ActCreateTicket, ActAutoResponse:
		default:
			return fmt.Errorf("action %d: unknown type %q", i, act.Type)
		}
	}
	return nil
}

// SeedDefaultRules inserts any default rule not already present. Existing
// rows are left alone so admin edits survive restarts; running it twice in
// a row is a no-op.
func SeedDefaultRules(ctx context.Context, st *store.Store) error {
	for _, r := range DefaultRules() {
		_, err := st.GetRule(ctx, r.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := st.SaveRule(ctx, &r); err != nil {
			return err
		}
	}
	return nil
}
