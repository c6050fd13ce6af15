package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clarabot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus connecting transport
// channels to the dispatch gateway, all in-process.
type InMemoryBus struct {
	inbound  chan domain.InboundMessage
	handlers map[string]func(context.Context, domain.OutboundMessage) error
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.InboundMessage, bufferSize),
		handlers: make(map[string]func(context.Context, domain.OutboundMessage) error),
		logger:   logger,
	}
}

// Publish delivers an inbound message to the gateway. Blocks up to 10
// seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...",
			"channel", msg.Channel, "conversation", msg.ConversationID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "channel", msg.Channel)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"channel", msg.Channel,
				"conversation", msg.ConversationID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound routes a reply to the handler registered for its
// channel and returns the delivery outcome. The turn processor logs
// an assistant turn only when this succeeds. The context bounds the
// delivery; handlers receive it and an expired context is an error
// before the handler ever runs.
func (b *InMemoryBus) SendOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no handler registered for channel %q: %w",
			msg.Channel, domain.ErrTransportSend)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("outbound send aborted for channel %q: %w",
			msg.Channel, err)
	}

	return handler(ctx, msg)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler func(context.Context, domain.OutboundMessage) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
