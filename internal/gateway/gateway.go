// Package gateway is the boundary between transport events and turn
// processing. It filters out non-eligible origins (group, broadcast
// and status chats) and dispatches everything else, one processor run
// per message.
package gateway

import (
	"context"
	"log/slog"
	"strings"

	"clarabot/internal/agent"
	"clarabot/internal/bus"
	"clarabot/internal/domain"
	"clarabot/internal/metrics"
)

const defaultConcurrency = 5

// DefaultReservedMarkers are origin-identifier substrings that mark a
// conversation as a group, broadcast, or status channel. Messages from
// those origins are dropped before any turn is logged.
var DefaultReservedMarkers = []string{"@g.us", "@broadcast", "status"}

// TurnProcessor runs one full message cycle.
type TurnProcessor interface {
	Process(ctx context.Context, msg domain.InboundMessage) (agent.State, error)
}

// Gateway consumes inbound transport events and forwards eligible ones
// unchanged to the turn processor. It owns no per-conversation state.
type Gateway struct {
	inbound     domain.MessageBus
	processor   TurnProcessor
	events      *bus.EventBus
	logger      *slog.Logger
	concurrency int
	reserved    []string
}

// Config holds the gateway dependencies.
type Config struct {
	Bus             domain.MessageBus
	Processor       TurnProcessor
	Events          *bus.EventBus
	Logger          *slog.Logger
	Concurrency     int      // max messages processed in parallel
	ReservedMarkers []string // defaults to DefaultReservedMarkers
}

func New(cfg Config) *Gateway {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ReservedMarkers == nil {
		cfg.ReservedMarkers = DefaultReservedMarkers
	}
	return &Gateway{
		inbound:     cfg.Bus,
		processor:   cfg.Processor,
		events:      cfg.Events,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		reserved:    cfg.ReservedMarkers,
	}
}

// Eligible reports whether an inbound message should be processed.
// Origin identifiers carrying a reserved marker and empty texts are
// dropped; everything else passes through untouched.
func (g *Gateway) Eligible(msg domain.InboundMessage) bool {
	if strings.TrimSpace(msg.Text) == "" {
		return false
	}
	for _, marker := range g.reserved {
		if strings.Contains(msg.ConversationID, marker) {
			return false
		}
	}
	return true
}

// Run consumes inbound messages until the context is cancelled or the
// bus closes. Each eligible message gets its own goroutine, bounded by
// the concurrency semaphore; ordering within a conversation is the
// processor's job. A failed cycle never stops the loop.
func (g *Gateway) Run(ctx context.Context) {
	g.logger.Info("gateway started", "concurrency", g.concurrency)

	sem := make(chan struct{}, g.concurrency)
	inbound := g.inbound.Subscribe()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("gateway stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				g.logger.Info("inbound channel closed, gateway stopping")
				return
			}
			g.Dispatch(ctx, msg, sem)
		}
	}
}

// Dispatch filters one message and, when eligible, hands it to the
// processor on its own goroutine.
func (g *Gateway) Dispatch(ctx context.Context, msg domain.InboundMessage, sem chan struct{}) {
	metrics.MessagesReceived.Inc()

	if !g.Eligible(msg) {
		metrics.MessagesFiltered.Inc()
		g.logger.Debug("message filtered",
			"channel", msg.Channel, "conversation", msg.ConversationID)
		if g.events != nil {
			g.events.Emit(bus.Event{
				Type:    bus.EventMessageFiltered,
				Source:  "gateway",
				Payload: map[string]any{"conversation": msg.ConversationID, "channel": msg.Channel},
			})
		}
		return
	}

	if g.events != nil {
		g.events.Emit(bus.Event{
			Type:    bus.EventMessageReceived,
			Source:  "gateway",
			Payload: map[string]any{"conversation": msg.ConversationID, "channel": msg.Channel},
		})
	}

	sem <- struct{}{}
	go func(m domain.InboundMessage) {
		defer func() { <-sem }()
		// Failures are terminal for the message and already logged by
		// the processor; the gateway keeps accepting traffic.
		_, _ = g.processor.Process(ctx, m)
	}(msg)
}
