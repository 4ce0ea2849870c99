package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"omnichannel-gateway/internal/database"
	"omnichannel-gateway/internal/escalation"
	"omnichannel-gateway/internal/models"
	"omnichannel-gateway/internal/store"
	"omnichannel-gateway/internal/webhook"
	"omnichannel-gateway/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(db)
	notifier := webhook.NewNotifier("", time.Second, zap.NewNop())
	adapter := whatsapp.NewClient(
		whatsapp.NewUnconfiguredSession(), st, notifier, whatsapp.NewResponder(8, 18),
		whatsapp.Options{DefaultCountryCode: "55"}, zap.NewNop())
	engine := escalation.NewEngine(st, notifier, zap.NewNop())

	convHandler := NewConversationHandler(st, adapter)
	escHandler := NewEscalationHandler(st, engine)
	waHandler := NewWhatsAppHandler(adapter)

	r := gin.New()
	r.GET("/api/conversations", convHandler.ListActive)
	r.GET("/api/conversations/:id", convHandler.GetDetails)
	r.PUT("/api/conversations/:id/status", convHandler.UpdateStatus)
	r.POST("/api/conversations/:id/messages", convHandler.Reply)
	r.GET("/api/escalation/rules", escHandler.ListRules)
	r.POST("/api/escalation/rules", escHandler.SaveRule)
	r.PUT("/api/escalation/rules/:id/toggle", escHandler.ToggleRule)
	r.POST("/api/whatsapp/send", waHandler.Send)
	r.GET("/api/whatsapp/qr", waHandler.GetQR)
	return r, st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetConversationNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/conversations/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()

	phone := "+5511999990000"
	customer, _ := st.UpsertCustomer(ctx, store.CustomerInput{Phone: &phone})
	conv := &models.Conversation{CustomerID: customer.ID, Channel: models.ChannelWhatsApp, ChannelThreadID: "t1"}
	if err := st.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, r, http.MethodPut, "/api/conversations/"+conv.ID+"/status", `{"status":"archived"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown status, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, "/api/conversations/"+conv.ID+"/status", `{"status":"resolved"}`)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReplyRecordsMessageEvenWhenChannelDown(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()

	phone := "+5511999990000"
	customer, _ := st.UpsertCustomer(ctx, store.CustomerInput{Phone: &phone})
	conv := &models.Conversation{CustomerID: customer.ID, Channel: models.ChannelWhatsApp, ChannelThreadID: "5511999990000@s.whatsapp.net"}
	if err := st.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", `{"content":"we are on it"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Delivered {
		t.Error("no session is ready, so the send cannot have been delivered")
	}

	msgs, _ := st.ListMessages(ctx, conv.ID)
	if len(msgs) != 1 || msgs[0].Direction != models.DirectionOutbound {
		t.Errorf("expected the reply persisted regardless of delivery, got %+v", msgs)
	}
}

func TestSaveRuleValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	bad := `{"id":"r1","name":"r1","conditions":"[{\"type\":\"astrology\",\"operator\":\"eq\"}]","actions":"[{\"type\":\"create_ticket\"}]"}`
	w := doJSON(t, r, http.MethodPost, "/api/escalation/rules", bad)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown condition type, got %d: %s", w.Code, w.Body.String())
	}

	good := `{"id":"r1","name":"Keyword watch","conditions":"[{\"type\":\"keyword\",\"operator\":\"contains\",\"value\":\"refund\"}]","actions":"[{\"type\":\"create_ticket\"}]"}`
	w = doJSON(t, r, http.MethodPost, "/api/escalation/rules", good)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestToggleRuleNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPut, "/api/escalation/rules/ghost/toggle", `{"enabled":false}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestWhatsAppSendUnavailableWithoutSession(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/whatsapp/send", `{"to":"11999990000","message":"hi"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a ready session, got %d", w.Code)
	}
}

func TestWhatsAppQRNotFoundWhenNotPairing(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/whatsapp/qr", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 with no pending challenge, got %d", w.Code)
	}
}
