package processor

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"
	"omnichannel-gateway/internal/whatsapp"

	"go.uber.org/zap"
)

// InboundEvent is a normalized inbound channel event, the processor's only
// input shape regardless of which adapter produced it.
type InboundEvent struct {
	Channel          models.Channel
	ChannelMessageID string
	ThreadID         string // channel-native conversation id
	SenderID         string // channel-native user id
	SenderName       string
	Email            string // set for the email channel
	Content          string
	Type             models.MessageType
	Metadata         map[string]interface{}
	ReceivedAt       time.Time
}

// Result is the resolved triple Ingest returns.
type Result struct {
	Customer     *models.Customer
	Conversation *models.Conversation
	Message      *models.Message
}

// AutoResponder runs after an inbound message has been persisted, on the
// worker goroutine. The WhatsApp adapter implements it to drive the
// webhook-or-canned-response path.
type AutoResponder interface {
	HandleInbound(ctx context.Context, conv *models.Conversation, customer *models.Customer, msg *models.Message)
}

// Broadcaster pushes live events to connected dashboard clients.
type Broadcaster interface {
	BroadcastEvent(eventType string, data interface{})
}

var defaultDepartments = map[models.Channel]string{
	models.ChannelWhatsApp: "sales",
	models.ChannelEmail:    "support",
	models.ChannelWebChat:  "support",
	models.ChannelPhone:    "support",
}

// Processor is the single normalization boundary between channel adapters
// and the conversation store: resolve customer, resolve conversation,
// append message. Adapters enqueue and return; the worker does the store
// round-trips.
type Processor struct {
	store     *store.Store
	logger    *zap.Logger
	responder AutoResponder
	hub       Broadcaster

	queue chan InboundEvent
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(*Processor)

func WithAutoResponder(r AutoResponder) Option {
	return func(p *Processor) { p.responder = r }
}

func WithBroadcaster(hub Broadcaster) Option {
	return func(p *Processor) { p.hub = hub }
}

func New(st *store.Store, logger *zap.Logger, opts ...Option) *Processor {
	p := &Processor{
		store:  st,
		logger: logger,
		queue:  make(chan InboundEvent, 256),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines draining the inbound queue.
func (p *Processor) Start(workers int) {
	if workers <= 0 {
		workers = 2
	}
	p.once.Do(func() {
		for i := 0; i < workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Shutdown stops accepting events and waits for the workers to drain.
func (p *Processor) Shutdown() {
	close(p.queue)
	p.wg.Wait()
}

// Enqueue hands an event to the workers without blocking the caller. When
// the queue is saturated the event is dropped with an error log; the
// adapter's event loop must never stall behind store I/O.
func (p *Processor) Enqueue(event InboundEvent) {
	select {
	case p.queue <- event:
	default:
		p.logger.Error("inbound queue full, dropping event",
			zap.String("channel", string(event.Channel)),
			zap.String("channel_message_id", event.ChannelMessageID))
	}
}

// EnqueueWhatsApp adapts a raw WhatsApp session message into the normalized
// event shape. Satisfies the adapter's Ingestor port.
func (p *Processor) EnqueueWhatsApp(msg whatsapp.InboundMessage) {
	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	p.Enqueue(InboundEvent{
		Channel:          models.ChannelWhatsApp,
		ChannelMessageID: msg.ChannelMessageID,
		ThreadID:         msg.SenderJID,
		SenderID:         msg.SenderJID,
		SenderName:       msg.SenderName,
		Content:          msg.Content,
		Type:             msg.Type,
		ReceivedAt:       receivedAt,
	})
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for event := range p.queue {
		result, err := p.Ingest(context.Background(), event)
		if err != nil {
			// Persistence fault: abort this message only, never the worker.
			p.logger.Error("ingest failed",
				zap.String("channel", string(event.Channel)),
				zap.String("channel_message_id", event.ChannelMessageID),
				zap.Error(err))
			continue
		}

		if p.hub != nil {
			p.hub.BroadcastEvent("new_message", result.Message)
		}
		if p.responder != nil {
			p.responder.HandleInbound(context.Background(), result.Conversation, result.Customer, result.Message)
		}
	}
}

// Ingest runs the three-step normalization synchronously: upsert customer,
// resolve or create the conversation for the channel thread, append the
// inbound message. This is the only path by which channel traffic becomes
// store state.
func (p *Processor) Ingest(ctx context.Context, event InboundEvent) (*Result, error) {
	customer, err := p.store.UpsertCustomer(ctx, p.customerInput(event))
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	conv, err := p.store.GetOpenConversationByChannelThread(ctx, event.Channel, event.ThreadID)
	if err == store.ErrNotFound {
		conv = &models.Conversation{
			CustomerID:      customer.ID,
			Channel:         event.Channel,
			ChannelThreadID: event.ThreadID,
			Status:          models.StatusOpen,
			Department:      departmentFor(event.Channel),
			Subject:         subjectFor(event),
		}
		if err := p.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	msg := &models.Message{
		ConversationID:   conv.ID,
		CustomerID:       customer.ID,
		Channel:          event.Channel,
		Direction:        models.DirectionInbound,
		Content:          event.Content,
		Type:             event.Type,
		SenderName:       event.SenderName,
		SenderID:         event.SenderID,
		ChannelMessageID: event.ChannelMessageID,
		Metadata:         models.EncodeMeta(event.Metadata),
	}
	if err := p.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	return &Result{Customer: customer, Conversation: conv, Message: msg}, nil
}

// customerInput picks the identifier appropriate to the channel: the
// channel-native ID for chat channels (with the phone derived from the JID
// for WhatsApp), the email address for the email channel.
func (p *Processor) customerInput(event InboundEvent) store.CustomerInput {
	in := store.CustomerInput{Name: event.SenderName}

	switch event.Channel {
	case models.ChannelEmail:
		if event.Email != "" {
			in.Email = &event.Email
		}
	case models.ChannelWhatsApp:
		sender := event.SenderID
		in.ChannelUserID = &sender
		if phone := whatsapp.PhoneFromJID(sender); phone != "" {
			in.Phone = &phone
		}
	default:
		if event.SenderID != "" {
			sender := event.SenderID
			in.ChannelUserID = &sender
		}
	}
	return in
}

func departmentFor(channel models.Channel) string {
	if dept, ok := defaultDepartments[channel]; ok {
		return dept
	}
	return "general"
}

func subjectFor(event InboundEvent) string {
	subject := event.Content
	if len(subject) <= 80 {
		return subject
	}
	// Back off to a rune boundary so accented content is not cut mid-rune.
	cut := 80
	for cut > 0 && !utf8.RuneStart(subject[cut]) {
		cut--
	}
	return subject[:cut]
}
