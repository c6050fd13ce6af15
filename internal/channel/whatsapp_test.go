package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"clarabot/internal/config"
	"clarabot/internal/domain"
)

func testChannelLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// captureBus records published inbound messages.
type captureBus struct {
	published []domain.InboundMessage
	handlers  map[string]func(context.Context, domain.OutboundMessage) error
}

func newCaptureBus() *captureBus {
	return &captureBus{handlers: make(map[string]func(context.Context, domain.OutboundMessage) error)}
}

func (b *captureBus) Publish(msg domain.InboundMessage) {
	b.published = append(b.published, msg)
}

func (b *captureBus) Subscribe() <-chan domain.InboundMessage { return nil }

func (b *captureBus) SendOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	if h, ok := b.handlers[msg.Channel]; ok {
		return h(ctx, msg)
	}
	return nil
}

func (b *captureBus) OnOutbound(name string, h func(context.Context, domain.OutboundMessage) error) {
	b.handlers[name] = h
}

func (b *captureBus) Close() {}

func newTestWhatsApp(t *testing.T, cfg config.WhatsAppConfig) (*WhatsApp, *captureBus) {
	t.Helper()
	w := NewWhatsApp(WhatsAppChannelConfig{Config: cfg, Logger: testChannelLogger()})
	bus := newCaptureBus()
	if err := w.Start(t.Context(), bus); err != nil {
		t.Fatal(err)
	}
	return w, bus
}

func TestWhatsAppVerification_ValidToken(t *testing.T) {
	w, _ := newTestWhatsApp(t, config.WhatsAppConfig{VerifyToken: "tok123", WebhookPath: "/webhook/whatsapp"})

	req := httptest.NewRequest("GET", "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=tok123&hub.challenge=42", nil)
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "42" {
		t.Errorf("expected challenge echoed, got %q", rr.Body.String())
	}
}

func TestWhatsAppVerification_WrongToken(t *testing.T) {
	w, _ := newTestWhatsApp(t, config.WhatsAppConfig{VerifyToken: "tok123", WebhookPath: "/webhook/whatsapp"})

	req := httptest.NewRequest("GET", "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

const waTextPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "123",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [{
          "from": "5511999990000",
          "id": "wamid.1",
          "type": "text",
          "text": {"body": "hello"}
        }]
      }
    }]
  }]
}`

func TestWhatsAppIncoming_TextPublished(t *testing.T) {
	w, bus := newTestWhatsApp(t, config.WhatsAppConfig{WebhookPath: "/webhook/whatsapp"})

	req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(waTextPayload))
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(bus.published))
	}
	msg := bus.published[0]
	if msg.Channel != "whatsapp" {
		t.Errorf("expected whatsapp channel, got %s", msg.Channel)
	}
	if msg.ConversationID != "5511999990000" {
		t.Errorf("expected sender phone as conversation, got %s", msg.ConversationID)
	}
	if msg.Text != "hello" {
		t.Errorf("expected hello, got %q", msg.Text)
	}
}

func TestWhatsAppIncoming_NonTextIgnored(t *testing.T) {
	w, bus := newTestWhatsApp(t, config.WhatsAppConfig{WebhookPath: "/webhook/whatsapp"})

	payload := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"from":"551","type":"image"}]}}]}]}`
	req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(bus.published) != 0 {
		t.Errorf("non-text message should not be published, got %d", len(bus.published))
	}
}

func TestWhatsAppIncoming_InvalidJSON(t *testing.T) {
	w, _ := newTestWhatsApp(t, config.WhatsAppConfig{WebhookPath: "/webhook/whatsapp"})

	req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString("not json"))
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestWhatsAppIncoming_ValidSignature(t *testing.T) {
	secret := "app-secret"
	w, bus := newTestWhatsApp(t, config.WhatsAppConfig{WebhookPath: "/webhook/whatsapp", AppSecret: secret})

	body := []byte(waTextPayload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(bus.published) != 1 {
		t.Errorf("expected message published, got %d", len(bus.published))
	}
}

func TestWhatsAppIncoming_InvalidSignature(t *testing.T) {
	w, bus := newTestWhatsApp(t, config.WhatsAppConfig{WebhookPath: "/webhook/whatsapp", AppSecret: "app-secret"})

	req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(waTextPayload))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
	if len(bus.published) != 0 {
		t.Errorf("forged request should not publish, got %d", len(bus.published))
	}
}

func TestWhatsAppIncoming_MissingSignature(t *testing.T) {
	w, _ := newTestWhatsApp(t, config.WhatsAppConfig{WebhookPath: "/webhook/whatsapp", AppSecret: "app-secret"})

	req := httptest.NewRequest("POST", "/webhook/whatsapp", bytes.NewBufferString(waTextPayload))
	rr := httptest.NewRecorder()
	w.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func TestSplitMessage_Short(t *testing.T) {
	chunks := splitMessage("short message", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitMessage_Long(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	chunks := splitMessage(long, 50)
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d too long: %d", i, len(c))
		}
	}
}

func TestSplitMessage_Empty(t *testing.T) {
	chunks := splitMessage("", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk for empty, got %d", len(chunks))
	}
}
