package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"

	"go.uber.org/zap"
)

// Notifier is the outbound notification contract; the automation webhook
// client satisfies it.
type Notifier interface {
	Notify(event string, data map[string]interface{}) ([]byte, error)
}

// Broadcaster pushes live escalation events to dashboard clients.
type Broadcaster interface {
	BroadcastEvent(eventType string, data interface{})
}

// TickStats summarizes one batch escalation check.
type TickStats struct {
	ConversationsChecked int           `json:"conversations_checked"`
	RulesFired           int           `json:"rules_fired"`
	Errors               int           `json:"errors"`
	Duration             time.Duration `json:"duration"`
}

// Engine evaluates escalation rules against live conversations and executes
// matched actions. It owns no timer: an external scheduler calls
// RunEscalationCheck at whatever cadence it wants.
type Engine struct {
	store    *store.Store
	notifier Notifier
	hub      Broadcaster
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Engine)

func WithBroadcaster(hub Broadcaster) Option {
	return func(e *Engine) { e.hub = hub }
}

// WithClock overrides the engine's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st *store.Store, notifier Notifier, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunEscalationCheck is the batch tick: fetch all open/pending
// conversations and evaluate each through the full rule set. One
// conversation blowing up never aborts the rest of the tick.
func (e *Engine) RunEscalationCheck(ctx context.Context) (*TickStats, error) {
	start := e.now()
	stats := &TickStats{}

	rules, err := e.store.ListEnabledRules(ctx)
	if err != nil {
		return stats, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		stats.Duration = e.now().Sub(start)
		return stats, nil
	}

	conversations, err := e.store.ListEscalationCandidates(ctx)
	if err != nil {
		return stats, fmt.Errorf("load conversations: %w", err)
	}

	for i := range conversations {
		stats.ConversationsChecked++
		fired, err := e.EvaluateConversation(ctx, &conversations[i], rules)
		if err != nil {
			stats.Errors++
			e.logger.Error("conversation evaluation failed",
				zap.String("conversation_id", conversations[i].ID), zap.Error(err))
			continue
		}
		stats.RulesFired += fired
	}

	stats.Duration = e.now().Sub(start)
	e.logger.Info("escalation check complete",
		zap.Int("conversations", stats.ConversationsChecked),
		zap.Int("fired", stats.RulesFired),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// EvaluateConversation runs every enabled rule against one conversation and
// returns how many fired.
func (e *Engine) EvaluateConversation(ctx context.Context, conv *models.Conversation, rules []models.EscalationRule) (int, error) {
	messages, err := e.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return 0, fmt.Errorf("load messages: %w", err)
	}

	cc := &ConversationContext{
		Conversation: conv,
		Customer:     conv.Customer,
		Messages:     messages,
		Now:          e.now(),
	}

	fired := 0
	for i := range rules {
		rule := &rules[i]
		matched, err := e.evaluateRule(ctx, rule, cc)
		if err != nil {
			// Malformed rule data is isolated per rule: log and move on.
			e.logger.Error("rule evaluation failed",
				zap.String("rule_id", rule.ID),
				zap.String("conversation_id", conv.ID),
				zap.Error(err))
			continue
		}
		if !matched {
			continue
		}

		if err := e.fireRule(ctx, rule, cc); err != nil {
			e.logger.Error("rule firing failed",
				zap.String("rule_id", rule.ID),
				zap.String("conversation_id", conv.ID),
				zap.Error(err))
			continue
		}
		fired++
	}
	return fired, nil
}

// evaluateRule decides whether a rule matches: every condition must hold
// (logical AND, short-circuit on the first false). A rule whose previous
// escalation for this conversation is still unresolved does not match
// again.
func (e *Engine) evaluateRule(ctx context.Context, rule *models.EscalationRule, cc *ConversationContext) (bool, error) {
	unresolved, err := e.store.HasUnresolvedEscalation(ctx, cc.Conversation.ID, rule.ID)
	if err != nil {
		return false, err
	}
	if unresolved {
		return false, nil
	}

	var conditions []Condition
	if err := json.Unmarshal([]byte(rule.Conditions), &conditions); err != nil {
		return false, fmt.Errorf("decode conditions: %w", err)
	}
	if len(conditions) == 0 {
		return false, nil
	}

	for _, cond := range conditions {
		ok, err := cond.Evaluate(cc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// fireRule creates the audit event, bumps the trigger counter and executes
// the rule's actions in declared order. A failing action is logged and
// skipped; the remaining actions still run.
func (e *Engine) fireRule(ctx context.Context, rule *models.EscalationRule, cc *ConversationContext) error {
	conv := cc.Conversation

	tier := ""
	if cc.Customer != nil {
		tier = string(cc.Customer.Tier)
	}
	event := &models.EscalationEvent{
		ConversationID: conv.ID,
		RuleID:         rule.ID,
		Status:         models.EscalationPending,
		Metadata: models.EncodeMeta(map[string]interface{}{
			"customer_tier":  tier,
			"channel":        string(conv.Channel),
			"prior_priority": string(conv.Priority),
			"message_count":  len(cc.Messages),
		}),
	}
	if err := e.store.CreateEscalationEvent(ctx, event); err != nil {
		return fmt.Errorf("create escalation event: %w", err)
	}
	if err := e.store.IncrementRuleTriggerCount(ctx, rule.ID); err != nil {
		e.logger.Warn("trigger count not incremented", zap.String("rule_id", rule.ID), zap.Error(err))
	}

	e.logger.Info("escalation rule fired",
		zap.String("rule_id", rule.ID),
		zap.String("conversation_id", conv.ID))

	var actions []Action
	if err := json.Unmarshal([]byte(rule.Actions), &actions); err != nil {
		return fmt.Errorf("decode actions: %w", err)
	}
	for _, action := range actions {
		if err := e.executeAction(ctx, action, rule, event, cc); err != nil {
			e.logger.Error("escalation action failed",
				zap.String("rule_id", rule.ID),
				zap.String("action", string(action.Type)),
				zap.Error(err))
		}
	}

	if e.hub != nil {
		e.hub.BroadcastEvent("escalation", event)
	}
	return nil
}
