package processor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"omnichannel-gateway/internal/database"
	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"
	"omnichannel-gateway/internal/whatsapp"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "processor.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func whatsappEvent(messageID, content string) InboundEvent {
	return InboundEvent{
		Channel:          models.ChannelWhatsApp,
		ChannelMessageID: messageID,
		ThreadID:         "5511999990000@s.whatsapp.net",
		SenderID:         "5511999990000@s.whatsapp.net",
		SenderName:       "Maria",
		Content:          content,
		Type:             models.TypeText,
		ReceivedAt:       time.Now(),
	}
}

func TestIngestCreatesCustomerConversationMessage(t *testing.T) {
	st := newTestStore(t)
	p := New(st, zap.NewNop())

	result, err := p.Ingest(context.Background(), whatsappEvent("m1", "oi, quero cotar uma viagem"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if result.Customer.ChannelUserID == nil || *result.Customer.ChannelUserID != "5511999990000@s.whatsapp.net" {
		t.Errorf("channel user id not captured: %+v", result.Customer)
	}
	if result.Customer.Phone == nil || *result.Customer.Phone != "+5511999990000" {
		t.Errorf("phone not derived from JID: %+v", result.Customer)
	}
	if result.Conversation.Status != models.StatusOpen {
		t.Errorf("expected open conversation, got %s", result.Conversation.Status)
	}
	if result.Conversation.Department != "sales" {
		t.Errorf("whatsapp conversations default to sales, got %q", result.Conversation.Department)
	}
	if result.Message.Direction != models.DirectionInbound {
		t.Errorf("expected inbound message, got %s", result.Message.Direction)
	}
}

func TestIngestReusesOpenConversation(t *testing.T) {
	st := newTestStore(t)
	p := New(st, zap.NewNop())
	ctx := context.Background()

	first, err := p.Ingest(ctx, whatsappEvent("m1", "first"))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := p.Ingest(ctx, whatsappEvent("m2", "second"))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if second.Conversation.ID != first.Conversation.ID {
		t.Fatalf("expected the same thread conversation, got %s and %s",
			first.Conversation.ID, second.Conversation.ID)
	}
	if second.Customer.ID != first.Customer.ID {
		t.Fatalf("expected the same customer, got %s and %s",
			first.Customer.ID, second.Customer.ID)
	}

	msgs, _ := st.ListMessages(ctx, first.Conversation.ID)
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages in the thread, got %d", len(msgs))
	}
}

func TestIngestAfterCloseOpensNewConversation(t *testing.T) {
	st := newTestStore(t)
	p := New(st, zap.NewNop())
	ctx := context.Background()

	first, err := p.Ingest(ctx, whatsappEvent("m1", "first trip"))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if err := st.UpdateConversationStatus(ctx, first.Conversation.ID, models.StatusClosed, nil); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := p.Ingest(ctx, whatsappEvent("m2", "a new trip"))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if second.Conversation.ID == first.Conversation.ID {
		t.Fatal("a closed conversation must not be reopened by new inbound traffic")
	}
	if second.Customer.ID != first.Customer.ID {
		t.Error("the customer identity must survive across conversations")
	}
	if second.Conversation.Subject != "a new trip" {
		t.Errorf("new conversation subject from first message, got %q", second.Conversation.Subject)
	}
}

func TestIngestEmailChannelUsesEmailIdentity(t *testing.T) {
	st := newTestStore(t)
	p := New(st, zap.NewNop())

	result, err := p.Ingest(context.Background(), InboundEvent{
		Channel:    models.ChannelEmail,
		ThreadID:   "thread-abc",
		SenderName: "Carlos",
		Email:      "carlos@example.com",
		Content:    "Quote request for a family trip to Buenos Aires next January, 2 adults and 2 kids",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if result.Customer.Email == nil || *result.Customer.Email != "carlos@example.com" {
		t.Errorf("email identity not captured: %+v", result.Customer)
	}
	if result.Conversation.Department != "support" {
		t.Errorf("email conversations default to support, got %q", result.Conversation.Department)
	}
	if len(result.Conversation.Subject) > 80 {
		t.Errorf("subject not truncated: %d chars", len(result.Conversation.Subject))
	}
}

func TestSubjectTruncatesOnRuneBoundary(t *testing.T) {
	// "ã" is two bytes and lands across the 80-byte cutoff.
	content := strings.Repeat("x", 79) + "ãos da viagem para Lisboa"

	subject := subjectFor(InboundEvent{Content: content})
	if len(subject) > 80 {
		t.Fatalf("subject not truncated: %d bytes", len(subject))
	}
	if !utf8.ValidString(subject) {
		t.Errorf("subject is not valid UTF-8: %q", subject)
	}
	if subject != strings.Repeat("x", 79) {
		t.Errorf("expected cut before the split rune, got %q", subject)
	}
}

type recordingResponder struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingResponder) HandleInbound(ctx context.Context, conv *models.Conversation, customer *models.Customer, msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *recordingResponder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastEvent(eventType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func TestWorkerPipelineRunsResponderAndBroadcast(t *testing.T) {
	st := newTestStore(t)
	responder := &recordingResponder{}
	hub := &recordingHub{}
	p := New(st, zap.NewNop(), WithAutoResponder(responder), WithBroadcaster(hub))
	p.Start(2)

	p.EnqueueWhatsApp(whatsapp.InboundMessage{
		ChannelMessageID: "m1",
		SenderJID:        "5511999990000@s.whatsapp.net",
		SenderName:       "Maria",
		Content:          "oi",
	})
	p.Shutdown()

	if responder.count() != 1 {
		t.Errorf("expected the responder to run once, got %d", responder.count())
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.events) != 1 || hub.events[0] != "new_message" {
		t.Errorf("expected one new_message broadcast, got %v", hub.events)
	}
}

func TestEnqueueWhatsAppDefaultsTimestamp(t *testing.T) {
	st := newTestStore(t)
	p := New(st, zap.NewNop())

	p.EnqueueWhatsApp(whatsapp.InboundMessage{
		ChannelMessageID: "m1",
		SenderJID:        "5511999990000@s.whatsapp.net",
		Content:          "hello",
	})

	event := <-p.queue
	if event.ReceivedAt.IsZero() {
		t.Error("expected a non-zero received timestamp")
	}
	if event.ThreadID != "5511999990000@s.whatsapp.net" {
		t.Errorf("sender JID should become the thread id, got %q", event.ThreadID)
	}
}
