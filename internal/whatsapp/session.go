package whatsapp

import (
	"context"
	"time"

	"omnichannel-gateway/internal/models"
)

// ConnState is the adapter's connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StatePairing      ConnState = "pairing"
	StateReady        ConnState = "ready"
	StateClosed       ConnState = "closed"
)

// EventType tags events emitted by a Session.
type EventType int

const (
	EventPairing EventType = iota // a pairing challenge is available
	EventReady                    // session authenticated and connected
	EventMessage                  // inbound message
	EventClosed                   // connection dropped or logged out
)

// InboundMessage is the raw inbound unit the session surfaces before any
// normalization.
type InboundMessage struct {
	ChannelMessageID string
	SenderJID        string
	SenderName       string
	Content          string
	Type             models.MessageType
	FromSelf         bool
	Broadcast        bool
	Timestamp        time.Time
}

// Event is one occurrence on the session's event stream.
type Event struct {
	Type             EventType
	PairingChallenge string // opaque pairing payload, set on EventPairing
	Message          *InboundMessage
	LoggedOut        bool // set on EventClosed when the close was an explicit logout
	Reason           string
}

// Session is the contract this system requires from the multi-device
// pairing/transport library: connect, stream events, send text or button
// messages. The cryptographic handshake behind it is the library's problem.
type Session interface {
	// HasCredentials reports whether prior session state exists, i.e.
	// whether Connect can skip the pairing step.
	HasCredentials() bool

	// Connect (re)establishes the link and starts emitting events. Safe to
	// call again after a close.
	Connect(ctx context.Context) error

	// Events returns the session's event stream. The channel stays open for
	// the session's lifetime.
	Events() <-chan Event

	// SendText dispatches a plain text message to a channel-native address.
	SendText(ctx context.Context, jid, text string) error

	// SendButtons dispatches an interactive message with quick-reply
	// choices.
	SendButtons(ctx context.Context, jid, text string, buttons []string) error

	// Disconnect tears the link down without discarding credentials.
	Disconnect() error
}

// UnconfiguredSession is the Session used when no transport library is wired
// in. It never pairs and never becomes ready, which the bootstrapper reports
// as a degraded (but not fatal) channel adapter.
type UnconfiguredSession struct {
	events chan Event
}

func NewUnconfiguredSession() *UnconfiguredSession {
	return &UnconfiguredSession{events: make(chan Event)}
}

func (s *UnconfiguredSession) HasCredentials() bool { return false }

func (s *UnconfiguredSession) Connect(ctx context.Context) error {
	return ErrNoTransport
}

func (s *UnconfiguredSession) Events() <-chan Event { return s.events }

func (s *UnconfiguredSession) SendText(ctx context.Context, jid, text string) error {
	return ErrNoTransport
}

func (s *UnconfiguredSession) SendButtons(ctx context.Context, jid, text string, buttons []string) error {
	return ErrNoTransport
}

func (s *UnconfiguredSession) Disconnect() error { return nil }
