package whatsapp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"

	"go.uber.org/zap"
)

type sentMsg struct {
	jid     string
	text    string
	buttons []string
}

// fakeSession is a scriptable Session: each Connect emits the configured
// event sequence on the stream.
type fakeSession struct {
	mu        sync.Mutex
	events    chan Event
	connects  int
	onConnect []Event
	sendErr   error
	sent      []sentMsg
	hasCreds  bool
}

func newFakeSession(onConnect ...Event) *fakeSession {
	return &fakeSession{
		events:    make(chan Event, 16),
		onConnect: onConnect,
	}
}

func (f *fakeSession) HasCredentials() bool { return f.hasCreds }

func (f *fakeSession) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	for _, ev := range f.onConnect {
		f.events <- ev
	}
	return nil
}

func (f *fakeSession) Events() <-chan Event { return f.events }

func (f *fakeSession) SendText(ctx context.Context, jid, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMsg{jid: jid, text: text})
	return nil
}

func (f *fakeSession) SendButtons(ctx context.Context, jid, text string, buttons []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMsg{jid: jid, text: text, buttons: buttons})
	return nil
}

func (f *fakeSession) Disconnect() error { return nil }

func (f *fakeSession) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeSession) sentMessages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMsg, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeMessageStore struct {
	mu        sync.Mutex
	templates map[string]*models.MessageTemplate
	appended  []*models.Message
}

func (f *fakeMessageStore) GetTemplateByName(ctx context.Context, name string) (*models.MessageTemplate, error) {
	if tmpl, ok := f.templates[name]; ok {
		return tmpl, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeMessageStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, msg)
	return nil
}

type fakeWebhook struct {
	mu     sync.Mutex
	err    error
	events []string
}

func (f *fakeWebhook) Notify(event string, data map[string]interface{}) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.events = append(f.events, event)
	return []byte("{}"), nil
}

type fakeIngestor struct {
	mu       sync.Mutex
	received []InboundMessage
}

func (f *fakeIngestor) EnqueueWhatsApp(msg InboundMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, msg)
}

func (f *fakeIngestor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func testOptions() Options {
	return Options{
		DefaultCountryCode: "55",
		PairingTimeout:     2 * time.Second,
		ReconnectDelay:     50 * time.Millisecond,
	}
}

func newTestClient(session Session, st MessageStore, hook Notifier) *Client {
	return NewClient(session, st, hook, NewResponder(0, 24), testOptions(), zap.NewNop())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestInitializeBecomesReady(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})

	result := client.Initialize(context.Background())
	if !result.Ready || !result.Paired {
		t.Fatalf("expected ready result, got %+v", result)
	}
	if client.State() != StateReady {
		t.Errorf("expected state ready, got %s", client.State())
	}
}

func TestInitializeReportsPairingChallengeOnTimeout(t *testing.T) {
	session := newFakeSession(Event{Type: EventPairing, PairingChallenge: "pair-me-1234"})
	client := NewClient(session, &fakeMessageStore{}, &fakeWebhook{}, NewResponder(0, 24), Options{
		DefaultCountryCode: "55",
		PairingTimeout:     300 * time.Millisecond,
		ReconnectDelay:     time.Hour,
	}, zap.NewNop())

	result := client.Initialize(context.Background())
	if result.Ready {
		t.Fatal("unscanned pairing must not report ready")
	}
	if result.PairingQR == "" {
		t.Fatal("expected the pairing challenge in the partial result")
	}
	if client.State() != StatePairing {
		t.Errorf("expected state pairing, got %s", client.State())
	}
	if client.PairingChallenge() == "" {
		t.Error("expected the challenge to stay retrievable for polling")
	}
}

func TestSendFailsFastWhenNotReady(t *testing.T) {
	session := newFakeSession()
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})

	if client.SendMessage(context.Background(), "11999990000", "hello") {
		t.Fatal("send must fail fast without a ready session")
	}
	if len(session.sentMessages()) != 0 {
		t.Error("nothing should reach the transport")
	}
}

func TestSendMessageNormalizesAndEchoes(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	hook := &fakeWebhook{}
	client := newTestClient(session, &fakeMessageStore{}, hook)
	client.Initialize(context.Background())

	if !client.SendMessage(context.Background(), "11999990000", "hello") {
		t.Fatal("expected send to succeed")
	}

	sent := session.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sent))
	}
	if sent[0].jid != "5511999990000"+JIDSuffix {
		t.Errorf("recipient not normalized: %s", sent[0].jid)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.events) == 0 || hook.events[len(hook.events)-1] != "message_sent" {
		t.Errorf("expected a message_sent webhook echo, got %v", hook.events)
	}
}

func TestSendMessageTransportError(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})
	client.Initialize(context.Background())

	session.mu.Lock()
	session.sendErr = errors.New("socket gone")
	session.mu.Unlock()

	if client.SendMessage(context.Background(), "11999990000", "hello") {
		t.Fatal("transport failure must surface as a failed send")
	}
}

func TestLogoutStaysClosed(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})
	client.Initialize(context.Background())

	session.events <- Event{Type: EventClosed, LoggedOut: true, Reason: "logged out"}
	waitFor(t, time.Second, func() bool { return client.State() == StateClosed })

	// No automatic reconnect after an explicit logout.
	time.Sleep(200 * time.Millisecond)
	if got := session.connectCount(); got != 1 {
		t.Errorf("expected no reconnect after logout, connects=%d", got)
	}
}

func TestUnexpectedCloseReconnects(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})
	client.Initialize(context.Background())

	session.events <- Event{Type: EventClosed, Reason: "stream error"}
	waitFor(t, 2*time.Second, func() bool { return session.connectCount() >= 2 })
	waitFor(t, 2*time.Second, func() bool { return client.State() == StateReady })
}

func TestCloseAfterDisconnectDoesNotReconnect(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})
	client.Initialize(context.Background())

	if err := client.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	// The transport's close notification arrives after the deliberate
	// teardown; it must not revive the session.
	session.events <- Event{Type: EventClosed, Reason: "connection closed"}
	time.Sleep(300 * time.Millisecond)

	if got := session.connectCount(); got != 1 {
		t.Errorf("expected no reconnect after Disconnect, connects=%d", got)
	}
	if state := client.State(); state != StateClosed {
		t.Errorf("expected state closed, got %q", state)
	}
}

func TestInboundEventsSkipSelfAndBroadcast(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})
	ingestor := &fakeIngestor{}
	client.SetIngestor(ingestor)
	client.Initialize(context.Background())

	session.events <- Event{Type: EventMessage, Message: &InboundMessage{Content: "note to self", FromSelf: true}}
	session.events <- Event{Type: EventMessage, Message: &InboundMessage{Content: "status blast", Broadcast: true}}
	session.events <- Event{Type: EventMessage, Message: &InboundMessage{
		ChannelMessageID: "m1",
		SenderJID:        "5511999990000" + JIDSuffix,
		Content:          "oi",
	}}

	waitFor(t, time.Second, func() bool { return ingestor.count() == 1 })
	if got := ingestor.received[0].Content; got != "oi" {
		t.Errorf("wrong message ingested: %q", got)
	}
}

func inboundTriple() (*models.Conversation, *models.Customer, *models.Message) {
	channelUser := "5511999990000" + JIDSuffix
	phone := "+5511999990000"
	conv := &models.Conversation{ID: "conv-1", Channel: models.ChannelWhatsApp, CustomerID: "cust-1"}
	customer := &models.Customer{ID: "cust-1", Name: "Maria", Phone: &phone, ChannelUserID: &channelUser}
	msg := &models.Message{ID: "msg-1", ConversationID: "conv-1", Content: "oi", Direction: models.DirectionInbound}
	return conv, customer, msg
}

func TestHandleInboundPrefersWebhook(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	st := &fakeMessageStore{}
	client := newTestClient(session, st, &fakeWebhook{})
	client.Initialize(context.Background())

	conv, customer, msg := inboundTriple()
	client.HandleInbound(context.Background(), conv, customer, msg)

	if len(session.sentMessages()) != 0 {
		t.Error("no canned response expected when the webhook accepts the event")
	}
	if len(st.appended) != 0 {
		t.Error("no outbound message should be recorded when the webhook accepts the event")
	}
}

func TestHandleInboundCannedFallback(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	st := &fakeMessageStore{}
	client := newTestClient(session, st, &fakeWebhook{err: errors.New("connection refused")})
	client.Initialize(context.Background())

	conv, customer, msg := inboundTriple()
	client.HandleInbound(context.Background(), conv, customer, msg)

	sent := session.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one canned reply, got %d", len(sent))
	}
	if sent[0].jid != "5511999990000"+JIDSuffix {
		t.Errorf("canned reply sent to %s", sent[0].jid)
	}
	if !strings.Contains(sent[0].text, "How can we help") {
		t.Errorf("expected the greeting reply, got %q", sent[0].text)
	}

	if len(st.appended) != 1 {
		t.Fatalf("expected the canned reply recorded, got %d messages", len(st.appended))
	}
	recorded := st.appended[0]
	if !recorded.Automated || recorded.Direction != models.DirectionOutbound {
		t.Errorf("recorded reply should be automated outbound, got %+v", recorded)
	}
	if !strings.Contains(recorded.Metadata, string(CategoryGreeting)) {
		t.Errorf("expected the category in metadata, got %s", recorded.Metadata)
	}
}

func TestHandleInboundFallbackWithoutSession(t *testing.T) {
	// Webhook down and session down: the reply still lands in the store so
	// an agent can see what the customer should have been told.
	session := newFakeSession()
	st := &fakeMessageStore{}
	client := newTestClient(session, st, &fakeWebhook{err: errors.New("timeout")})

	conv, customer, msg := inboundTriple()
	client.HandleInbound(context.Background(), conv, customer, msg)

	if len(session.sentMessages()) != 0 {
		t.Error("no transport send expected while disconnected")
	}
	if len(st.appended) != 1 {
		t.Errorf("expected the canned reply recorded anyway, got %d", len(st.appended))
	}
}

func TestSendTemplateRendersAndSends(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	st := &fakeMessageStore{templates: map[string]*models.MessageTemplate{
		"booking_confirmation": {
			Name: "booking_confirmation",
			Body: "Hi {{1}}, your trip to {{2}} is confirmed.",
		},
	}}
	client := newTestClient(session, st, &fakeWebhook{})
	client.Initialize(context.Background())

	if !client.SendTemplate(context.Background(), "11999990000", "booking_confirmation", []string{"Maria", "Lisbon"}) {
		t.Fatal("expected template send to succeed")
	}
	sent := session.sentMessages()
	if len(sent) != 1 || sent[0].text != "Hi Maria, your trip to Lisbon is confirmed." {
		t.Errorf("unexpected sends %+v", sent)
	}
}

func TestSendTemplateWithButtons(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	st := &fakeMessageStore{templates: map[string]*models.MessageTemplate{
		"seat_confirm": {
			Name:    "seat_confirm",
			Body:    "Confirm your seat, {{1}}?",
			Buttons: `["Yes","No"]`,
		},
	}}
	client := newTestClient(session, st, &fakeWebhook{})
	client.Initialize(context.Background())

	if !client.SendTemplate(context.Background(), "11999990000", "seat_confirm", []string{"Ana"}) {
		t.Fatal("expected template send to succeed")
	}
	sent := session.sentMessages()
	if len(sent) != 1 || len(sent[0].buttons) != 2 {
		t.Errorf("expected an interactive send with 2 buttons, got %+v", sent)
	}
}

func TestSendTemplateUnknownDegradesToPlainText(t *testing.T) {
	session := newFakeSession(Event{Type: EventReady})
	client := newTestClient(session, &fakeMessageStore{}, &fakeWebhook{})
	client.Initialize(context.Background())

	if !client.SendTemplate(context.Background(), "11999990000", "nope", []string{"hello", "there"}) {
		t.Fatal("unknown template should degrade to a plain send")
	}
	sent := session.sentMessages()
	if len(sent) != 1 || sent[0].text != "hello there" {
		t.Errorf("expected joined params as plain text, got %+v", sent)
	}
}

func TestEncodeQR(t *testing.T) {
	encoded := EncodeQR("pairing-payload-1234")
	if encoded == "" || encoded == PlaceholderQR {
		t.Error("expected a real encoded challenge")
	}

	// No challenge means nothing to render, not a broken image.
	if got := EncodeQR(""); got != "" {
		t.Errorf("expected empty output for empty challenge, got %d bytes", len(got))
	}

	// Unencodable input falls back to the placeholder instead of failing.
	if got := EncodeQR(strings.Repeat("x", 8000)); got != PlaceholderQR {
		t.Error("expected placeholder for an oversized challenge")
	}
}
