package domain

import "context"

// Channel is the interface for user-facing transports (WhatsApp,
// Telegram, Discord, Slack, CLI). Start blocks until the context is
// cancelled; inbound messages are published to the bus and outbound
// replies arrive through the handler registered under Name().
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, conversationID string, text string) error
}
