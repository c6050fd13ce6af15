package bus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"clarabot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestInMemoryBus_PublishSubscribe(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.InboundMessage{Channel: "cli", ConversationID: "U1", Text: "hi"})

	msg := <-b.Subscribe()
	if msg.ConversationID != "U1" {
		t.Errorf("expected U1, got %s", msg.ConversationID)
	}
	if msg.Text != "hi" {
		t.Errorf("expected hi, got %s", msg.Text)
	}
}

func TestInMemoryBus_OutboundRouting(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	var got domain.OutboundMessage
	b.OnOutbound("whatsapp", func(ctx context.Context, msg domain.OutboundMessage) error {
		got = msg
		return nil
	})

	err := b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "whatsapp", ConversationID: "U1", Text: "reply"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "reply" {
		t.Errorf("handler not invoked, got %+v", got)
	}
}

func TestInMemoryBus_OutboundNoHandler(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	err := b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "nope", Text: "x"})
	if !errors.Is(err, domain.ErrTransportSend) {
		t.Errorf("expected ErrTransportSend, got %v", err)
	}
}

func TestInMemoryBus_OutboundHandlerError(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	sendErr := errors.New("boom")
	b.OnOutbound("telegram", func(ctx context.Context, msg domain.OutboundMessage) error {
		return sendErr
	})

	if err := b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "telegram"}); !errors.Is(err, sendErr) {
		t.Errorf("expected handler error propagated, got %v", err)
	}
}

func TestInMemoryBus_OutboundExpiredContext(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	var called bool
	b.OnOutbound("slack", func(ctx context.Context, msg domain.OutboundMessage) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.SendOutbound(ctx, domain.OutboundMessage{Channel: "slack"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("handler must not run with an expired context")
	}
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(10, testLogger())
	b.Close()

	// Must not panic.
	b.Publish(domain.InboundMessage{Channel: "cli", Text: "late"})

	if _, ok := <-b.Subscribe(); ok {
		t.Error("expected closed inbound channel")
	}
}
