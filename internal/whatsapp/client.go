package whatsapp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"

	"go.uber.org/zap"
)

// ErrNoTransport is returned by sessions with no underlying pairing library
// wired in.
var ErrNoTransport = errors.New("whatsapp: no transport configured")

// Ingestor receives raw inbound messages for asynchronous processing. The
// event loop only enqueues; all store work happens on the processor's
// workers so one slow message never stalls the next inbound event.
type Ingestor interface {
	EnqueueWhatsApp(msg InboundMessage)
}

// MessageStore is the slice of the conversation store the adapter needs.
type MessageStore interface {
	GetTemplateByName(ctx context.Context, name string) (*models.MessageTemplate, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
}

// Notifier is the downstream automation webhook contract.
type Notifier interface {
	Notify(event string, data map[string]interface{}) ([]byte, error)
}

// Options tunes the adapter's timing behavior.
type Options struct {
	DefaultCountryCode string
	PairingTimeout     time.Duration
	ReconnectDelay     time.Duration
}

// InitResult is what Initialize reports back: either a ready session, a
// pairing challenge awaiting a human scan, or a failure reason.
type InitResult struct {
	Paired        bool   `json:"paired"`
	Ready         bool   `json:"ready"`
	PairingQR     string `json:"pairing_qr,omitempty"` // base64 PNG
	FailureReason string `json:"failure_reason,omitempty"`
}

// Client owns the single live WhatsApp session of the process. It hides the
// pairing library behind the Session port and exposes send/receive plus
// lifecycle state to the rest of the system.
type Client struct {
	session   Session
	store     MessageStore
	notifier  Notifier
	responder *Responder
	logger    *zap.Logger
	opts      Options

	ingestor Ingestor

	mu        sync.Mutex
	state     ConnState
	pairingQR string

	loopOnce sync.Once
}

func NewClient(session Session, st MessageStore, notifier Notifier, responder *Responder, opts Options, logger *zap.Logger) *Client {
	if opts.PairingTimeout <= 0 {
		opts.PairingTimeout = 25 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &Client{
		session:   session,
		store:     st,
		notifier:  notifier,
		responder: responder,
		logger:    logger,
		opts:      opts,
		state:     StateDisconnected,
	}
}

// SetIngestor wires the inbound processor. Must be called before
// Initialize; inbound messages arriving without an ingestor are dropped
// with a log line.
func (c *Client) SetIngestor(ingestor Ingestor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ingestor = ingestor
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PairingChallenge returns the current pairing challenge as a base64 PNG,
// or empty when none is pending.
func (c *Client) PairingChallenge() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairingQR
}

// Initialize idempotently (re)establishes the session. First run (no prior
// credentials) surfaces a pairing challenge; reconnects skip pairing. The
// wait for either signal is bounded by the pairing timeout: on timeout the
// caller gets whatever partial state is known and should poll again rather
// than treat it as fatal.
func (c *Client) Initialize(ctx context.Context) InitResult {
	c.loopOnce.Do(func() { go c.eventLoop() })

	if c.State() == StateReady {
		return InitResult{Paired: true, Ready: true}
	}

	c.setState(StateConnecting)
	if err := c.session.Connect(ctx); err != nil {
		c.setState(StateDisconnected)
		c.logger.Warn("whatsapp connect failed", zap.Error(err))
		return InitResult{FailureReason: err.Error()}
	}

	deadline := time.Now().Add(c.opts.PairingTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return c.partialResult("initialize cancelled")
		case <-ticker.C:
		}

		switch c.State() {
		case StateReady:
			return InitResult{Paired: true, Ready: true}
		case StatePairing:
			// Keep waiting: the scan may still happen within the window.
			// If it does not, the timeout path below reports the challenge.
		case StateClosed, StateDisconnected:
			return c.partialResult("session closed during initialize")
		}
	}

	return c.partialResult("timed out waiting for pairing or ready signal")
}

func (c *Client) partialResult(reason string) InitResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateReady {
		return InitResult{Paired: true, Ready: true}
	}
	if c.pairingQR != "" {
		return InitResult{Paired: false, PairingQR: c.pairingQR}
	}
	return InitResult{FailureReason: reason}
}

// SendMessage normalizes the recipient, fails fast when no session is ready
// and otherwise dispatches, echoing the send to the automation webhook on a
// best-effort basis.
func (c *Client) SendMessage(ctx context.Context, recipient, text string) bool {
	if c.State() != StateReady {
		c.logger.Warn("send skipped: session not ready", zap.String("to", recipient))
		return false
	}

	jid := NormalizeRecipient(recipient, c.opts.DefaultCountryCode)
	if jid == "" {
		c.logger.Warn("send skipped: unusable recipient", zap.String("to", recipient))
		return false
	}

	if err := c.session.SendText(ctx, jid, text); err != nil {
		c.logger.Error("send failed", zap.String("to", jid), zap.Error(err))
		return false
	}

	if _, err := c.notifier.Notify("message_sent", map[string]interface{}{
		"to":      jid,
		"message": text,
		"channel": string(models.ChannelWhatsApp),
	}); err != nil {
		// Side-channel only; the send itself already succeeded.
		c.logger.Debug("webhook echo of send failed", zap.Error(err))
	}
	return true
}

// SendTemplate resolves a named template, substitutes ordered parameters and
// sends interactively when the template declares buttons. Unknown templates
// degrade to sending the joined parameters as plain text.
func (c *Client) SendTemplate(ctx context.Context, recipient, templateName string, params []string) bool {
	tmpl, err := c.store.GetTemplateByName(ctx, templateName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Error("template lookup failed", zap.String("template", templateName), zap.Error(err))
		}
		return c.SendMessage(ctx, recipient, strings.Join(params, " "))
	}

	text, buttons := RenderTemplate(tmpl, params)

	if c.State() != StateReady {
		c.logger.Warn("template send skipped: session not ready", zap.String("to", recipient))
		return false
	}
	jid := NormalizeRecipient(recipient, c.opts.DefaultCountryCode)
	if jid == "" {
		return false
	}

	if len(buttons) > 0 {
		err = c.session.SendButtons(ctx, jid, text, buttons)
	} else {
		err = c.session.SendText(ctx, jid, text)
	}
	if err != nil {
		c.logger.Error("template send failed", zap.String("to", jid), zap.Error(err))
		return false
	}
	return true
}

// Disconnect tears the session down without discarding credentials.
func (c *Client) Disconnect() error {
	c.setState(StateClosed)
	return c.session.Disconnect()
}

// HandleInbound runs after the processor has persisted an inbound message:
// it forwards the message to the automation webhook and, when that is
// unreachable, answers with a locally generated canned response so the
// customer never faces silence.
func (c *Client) HandleInbound(ctx context.Context, conv *models.Conversation, customer *models.Customer, msg *models.Message) {
	data := map[string]interface{}{
		"conversation_id": conv.ID,
		"customer_id":     customer.ID,
		"name":            customer.Name,
		"content":         msg.Content,
		"channel":         string(conv.Channel),
	}
	if customer.Phone != nil {
		data["phone"] = *customer.Phone
	}

	if _, err := c.notifier.Notify("message_received", data); err == nil {
		return
	} else {
		c.logger.Warn("automation webhook unreachable, using canned response",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	reply, category := c.responder.Respond(msg.Content)

	if c.State() == StateReady && customer.ChannelUserID != nil {
		if err := c.session.SendText(ctx, *customer.ChannelUserID, reply); err != nil {
			c.logger.Error("canned response send failed", zap.Error(err))
		}
	}

	outbound := &models.Message{
		ConversationID: conv.ID,
		CustomerID:     customer.ID,
		Channel:        conv.Channel,
		Direction:      models.DirectionOutbound,
		Content:        reply,
		Automated:      true,
		SenderName:     "auto-responder",
		Metadata:       models.EncodeMeta(map[string]interface{}{"category": string(category)}),
	}
	if err := c.store.AppendMessage(ctx, outbound); err != nil {
		c.logger.Error("recording canned response failed", zap.Error(err))
	}
}

func (c *Client) eventLoop() {
	for event := range c.session.Events() {
		switch event.Type {
		case EventPairing:
			c.mu.Lock()
			c.pairingQR = EncodeQR(event.PairingChallenge)
			c.state = StatePairing
			c.mu.Unlock()
			c.logger.Info("pairing challenge received, waiting for scan")

		case EventReady:
			c.mu.Lock()
			c.pairingQR = ""
			c.state = StateReady
			c.mu.Unlock()
			c.logger.Info("whatsapp session ready")

		case EventMessage:
			c.handleInboundEvent(event.Message)

		case EventClosed:
			c.handleClosed(event)
		}
	}
}

func (c *Client) handleInboundEvent(msg *InboundMessage) {
	if msg == nil || msg.FromSelf || msg.Broadcast {
		return
	}

	c.mu.Lock()
	ingestor := c.ingestor
	c.mu.Unlock()
	if ingestor == nil {
		c.logger.Error("inbound message dropped: no ingestor wired",
			zap.String("channel_message_id", msg.ChannelMessageID))
		return
	}
	ingestor.EnqueueWhatsApp(*msg)
}

func (c *Client) handleClosed(event Event) {
	if event.LoggedOut {
		c.setState(StateClosed)
		c.logger.Warn("session logged out; staying closed until re-initialized")
		return
	}

	// A close event after a deliberate Disconnect is the teardown echo,
	// not an outage; reconnecting would revive a session the caller killed.
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	c.logger.Warn("session closed unexpectedly, scheduling reconnect",
		zap.String("reason", event.Reason), zap.Duration("delay", c.opts.ReconnectDelay))
	time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.Initialize(context.Background())
	})
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
