package models

import (
	"encoding/json"
	"time"
)

// Channel identifies the messaging surface a conversation lives on.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelEmail     Channel = "email"
	ChannelWebChat   Channel = "webchat"
	ChannelPhone     Channel = "phone"
	ChannelInstagram Channel = "instagram"
	ChannelFacebook  Channel = "facebook"
)

type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusPending  ConversationStatus = "pending"
	StatusResolved ConversationStatus = "resolved"
	StatusClosed   ConversationStatus = "closed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeDocument MessageType = "document"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeTemplate MessageType = "template"
)

type CustomerTier string

const (
	TierProspect CustomerTier = "prospect"
	TierCustomer CustomerTier = "customer"
	TierVIP      CustomerTier = "vip"
)

type AgentRole string

const (
	RoleAgent      AgentRole = "agent"
	RoleSupervisor AgentRole = "supervisor"
	RoleAdmin      AgentRole = "admin"
)

type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentAway    AgentStatus = "away"
	AgentBusy    AgentStatus = "busy"
)

type EscalationStatus string

const (
	EscalationPending    EscalationStatus = "pending"
	EscalationInProgress EscalationStatus = "in_progress"
	EscalationResolved   EscalationStatus = "resolved"
	EscalationCancelled  EscalationStatus = "cancelled"
)

// Customer is a unique end-user identity, resolved by phone, then email,
// then channel-native ID.
type Customer struct {
	ID            string       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Phone         *string      `gorm:"uniqueIndex;type:varchar(32)" json:"phone,omitempty"`
	Email         *string      `gorm:"uniqueIndex;type:varchar(255)" json:"email,omitempty"`
	ChannelUserID *string      `gorm:"uniqueIndex;type:varchar(128)" json:"channel_user_id,omitempty"`
	Name          string       `gorm:"type:varchar(255)" json:"name"`
	Location      string       `gorm:"type:varchar(255)" json:"location"`
	Timezone      string       `gorm:"type:varchar(64)" json:"timezone"`
	Language      string       `gorm:"type:varchar(16)" json:"language"`
	Tier          CustomerTier `gorm:"type:varchar(20);default:'prospect'" json:"tier"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	LastContactAt *time.Time   `json:"last_contact_at,omitempty"`
}

func (Customer) TableName() string {
	return "customers"
}

// Conversation is a threaded exchange with one customer over one channel.
// At most one open/pending conversation exists per (channel, thread) tuple.
type Conversation struct {
	ID              string             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CustomerID      string             `gorm:"index;type:varchar(64);not null" json:"customer_id"`
	Channel         Channel            `gorm:"index:idx_conversations_thread;type:varchar(20);not null" json:"channel"`
	ChannelThreadID string             `gorm:"index:idx_conversations_thread;type:varchar(128)" json:"channel_thread_id"`
	Subject         string             `gorm:"type:varchar(255)" json:"subject"`
	Status          ConversationStatus `gorm:"index;type:varchar(20);default:'open'" json:"status"`
	Priority        Priority           `gorm:"type:varchar(20);default:'normal'" json:"priority"`
	AssignedAgentID *string            `gorm:"type:varchar(64)" json:"assigned_agent_id,omitempty"`
	Department      string             `gorm:"type:varchar(64)" json:"department"`
	Tags            string             `gorm:"type:text" json:"tags"`     // JSON array
	Metadata        string             `gorm:"type:text" json:"metadata"` // JSON object
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	ClosedAt        *time.Time         `json:"closed_at,omitempty"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Agent    *Agent    `gorm:"foreignKey:AssignedAgentID" json:"agent,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is one unit of communication inside a conversation. CreatedAt is
// immutable once set; ReadAt and DeliveredAt are the only fields mutated
// after insert.
type Message struct {
	ID               string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ConversationID   string      `gorm:"index;type:varchar(64);not null" json:"conversation_id"`
	CustomerID       string      `gorm:"type:varchar(64)" json:"customer_id"`
	Channel          Channel     `gorm:"type:varchar(20)" json:"channel"`
	Direction        Direction   `gorm:"type:varchar(10);not null" json:"direction"`
	Content          string      `gorm:"type:text" json:"content"`
	Type             MessageType `gorm:"type:varchar(20);default:'text'" json:"type"`
	SenderName       string      `gorm:"type:varchar(255)" json:"sender_name"`
	SenderID         string      `gorm:"type:varchar(128)" json:"sender_id"`
	AgentID          *string     `gorm:"type:varchar(64)" json:"agent_id,omitempty"`
	Automated        bool        `gorm:"default:false" json:"automated"`
	TemplateID       string      `gorm:"type:varchar(128)" json:"template_id"`
	Metadata         string      `gorm:"type:text" json:"metadata"`
	ChannelMessageID string      `gorm:"index;type:varchar(128)" json:"channel_message_id"`
	CreatedAt        time.Time   `gorm:"index;autoCreateTime" json:"created_at"`
	ReadAt           *time.Time  `json:"read_at,omitempty"`
	DeliveredAt      *time.Time  `json:"delivered_at,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// Agent is a human or automated responder.
type Agent struct {
	ID                   string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name                 string      `gorm:"type:varchar(255)" json:"name"`
	Email                string      `gorm:"type:varchar(255)" json:"email"`
	Phone                string      `gorm:"type:varchar(32)" json:"phone"`
	Department           string      `gorm:"type:varchar(64)" json:"department"`
	Role                 AgentRole   `gorm:"type:varchar(32);default:'agent'" json:"role"`
	Skills               string      `gorm:"type:text" json:"skills"`    // JSON array
	Languages            string      `gorm:"type:text" json:"languages"` // JSON array
	Active               bool        `gorm:"default:true" json:"active"`
	Status               AgentStatus `gorm:"type:varchar(20);default:'offline'" json:"status"`
	MaxConcurrent        int         `gorm:"default:5" json:"max_concurrent"`
	CurrentConversations int         `gorm:"default:0" json:"current_conversations"`
	CreatedAt            time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// EscalationRule is a named, orderable policy. Conditions and Actions hold
// JSON-encoded lists evaluated by the escalation engine.
type EscalationRule struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Priority     Priority  `gorm:"type:varchar(20)" json:"priority"`
	Conditions   string    `gorm:"type:text" json:"conditions"` // JSON conditions
	Actions      string    `gorm:"type:text" json:"actions"`    // JSON actions
	Enabled      bool      `gorm:"default:true" json:"enabled"`
	TriggerCount int64     `gorm:"default:0" json:"trigger_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EscalationRule) TableName() string {
	return "escalation_rules"
}

// EscalationEvent is an immutable audit record of one rule firing against one
// conversation. Status transitions are the only permitted mutation.
type EscalationEvent struct {
	ID             string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ConversationID string           `gorm:"index;type:varchar(64);not null" json:"conversation_id"`
	RuleID         string           `gorm:"index;type:varchar(64);not null" json:"rule_id"`
	TriggeredAt    time.Time        `gorm:"autoCreateTime" json:"triggered_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	Status         EscalationStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Metadata       string           `gorm:"type:text" json:"metadata"` // snapshot at trigger time
}

func (EscalationEvent) TableName() string {
	return "escalation_events"
}

// ActivityLog is an append-only audit trail entry for a conversation.
type ActivityLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"index;type:varchar(64)" json:"conversation_id"`
	AgentID        *string   `gorm:"type:varchar(64)" json:"agent_id,omitempty"`
	Action         string    `gorm:"type:varchar(64)" json:"action"`
	Description    string    `gorm:"type:text" json:"description"`
	Metadata       string    `gorm:"type:text" json:"metadata"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_log"
}

// SupportTicket links a conversation to the escalation event that raised it.
type SupportTicket struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ConversationID    string    `gorm:"index;type:varchar(64);not null" json:"conversation_id"`
	EscalationEventID string    `gorm:"type:varchar(64)" json:"escalation_event_id"`
	Subject           string    `gorm:"type:varchar(255)" json:"subject"`
	Priority          Priority  `gorm:"type:varchar(20);default:'high'" json:"priority"`
	Status            string    `gorm:"type:varchar(20);default:'open'" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SupportTicket) TableName() string {
	return "support_tickets"
}

// FollowUp is a deferred outbound WhatsApp message. A separate worker drains
// rows due by scheduled_for; this service only enqueues and lists them.
type FollowUp struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CustomerID   string     `gorm:"type:varchar(64)" json:"customer_id"`
	Phone        string     `gorm:"type:varchar(32)" json:"phone"`
	Content      string     `gorm:"type:text" json:"content"`
	ScheduledFor time.Time  `gorm:"index:idx_followups_due;not null" json:"scheduled_for"`
	Status       string     `gorm:"index:idx_followups_due;type:varchar(20);default:'pending'" json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (FollowUp) TableName() string {
	return "whatsapp_followups"
}

// MessageTemplate is a reusable outbound message body with ordered {{n}}
// variable slots and optional quick-reply buttons.
type MessageTemplate struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"uniqueIndex;type:varchar(128);not null" json:"name"`
	Language  string    `gorm:"type:varchar(16)" json:"language"`
	Body      string    `gorm:"type:text" json:"body"`
	Buttons   string    `gorm:"type:text" json:"buttons"` // JSON array of labels
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}

// EncodeMeta renders a metadata map as the JSON text stored in metadata
// columns. A nil map encodes as "{}".
func EncodeMeta(meta map[string]interface{}) string {
	if meta == nil {
		return "{}"
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeMeta is the typed view over a stored metadata blob. Malformed or
// empty blobs decode as an empty map so call sites never branch on JSON
// errors.
func DecodeMeta(raw string) map[string]interface{} {
	meta := map[string]interface{}{}
	if raw == "" {
		return meta
	}
	_ = json.Unmarshal([]byte(raw), &meta)
	return meta
}
