package escalation

import (
	"fmt"
	"strings"
	"time"

	"omnichannel-gateway/internal/models"
)

// ConditionType enumerates the evaluable condition kinds. Dispatch is a
// switch on this type so an unhandled kind is caught at review time, not
// buried in a string-keyed map.
type ConditionType string

const (
	CondResponseTime ConditionType = "response_time"
	CondMessageCount ConditionType = "message_count"
	CondKeyword      ConditionType = "keyword"
	CondCustomerTier ConditionType = "customer_tier"
	CondChannel      ConditionType = "channel"
	CondSentiment    ConditionType = "sentiment"
)

type Operator string

const (
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpEq          Operator = "eq"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

// Condition is one clause of a rule. All conditions in a rule AND together.
type Condition struct {
	Type      ConditionType `json:"type"`
	Operator  Operator      `json:"operator"`
	Value     string        `json:"value,omitempty"`     // keyword alternatives / tier / channel
	Threshold float64       `json:"threshold,omitempty"` // numeric comparisons
	Unit      string        `json:"unit,omitempty"`      // minutes (default), hours, days
}

// ConversationContext is everything a tick knows about one conversation at
// evaluation time.
type ConversationContext struct {
	Conversation *models.Conversation
	Customer     *models.Customer
	Messages     []models.Message // creation order
	Now          time.Time
}

// Evaluate returns whether the condition holds for the conversation.
func (c Condition) Evaluate(ctx *ConversationContext) (bool, error) {
	switch c.Type {
	case CondResponseTime:
		return c.evalResponseTime(ctx), nil
	case CondMessageCount:
		return compare(c.Operator, float64(len(ctx.Messages)), c.Threshold), nil
	case CondKeyword:
		return c.evalKeyword(ctx)
	case CondCustomerTier:
		if ctx.Customer == nil {
			return false, nil
		}
		return string(ctx.Customer.Tier) == c.Value, nil
	case CondChannel:
		return string(ctx.Conversation.Channel) == c.Value, nil
	case CondSentiment:
		return compare(c.Operator, SentimentScore(ctx.Messages), c.Threshold), nil
	default:
		return false, fmt.Errorf("unknown condition type %q", c.Type)
	}
}

// evalResponseTime measures how long the customer has been waiting: elapsed
// time since the last inbound message. If the most recent message is not
// inbound an agent has already replied, and the condition is false no
// matter the operator.
func (c Condition) evalResponseTime(ctx *ConversationContext) bool {
	if len(ctx.Messages) == 0 {
		return false
	}
	last := ctx.Messages[len(ctx.Messages)-1]
	if last.Direction != models.DirectionInbound {
		return false
	}

	elapsed := ctx.Now.Sub(last.CreatedAt)
	var value float64
	switch c.Unit {
	case "hours":
		value = elapsed.Hours()
	case "days":
		value = elapsed.Hours() / 24
	default:
		value = elapsed.Minutes()
	}
	return compare(c.Operator, value, c.Threshold)
}

// evalKeyword splits the rule value on | into alternatives and scans every
// message's content case-insensitively. "contains" is true on the first hit
// anywhere; "not_contains" is the full negation: true only when no
// alternative appears in any message.
func (c Condition) evalKeyword(ctx *ConversationContext) (bool, error) {
	alternatives := strings.Split(strings.ToLower(c.Value), "|")

	found := false
scan:
	for _, msg := range ctx.Messages {
		content := strings.ToLower(msg.Content)
		for _, alt := range alternatives {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			if strings.Contains(content, alt) {
				found = true
				break scan
			}
		}
	}

	switch c.Operator {
	case OpNotContains:
		return !found, nil
	case OpContains, "":
		return found, nil
	default:
		return false, fmt.Errorf("keyword condition: unsupported operator %q", c.Operator)
	}
}

func compare(op Operator, value, threshold float64) bool {
	switch op {
	case OpGt:
		return value > threshold
	case OpGte:
		return value >= threshold
	case OpLt:
		return value < threshold
	case OpLte:
		return value <= threshold
	case OpEq:
		return value == threshold
	default:
		return false
	}
}
