package domain

import "context"

// MessageBus routes messages between transport channels and the
// dispatch gateway. Outbound delivery honors context cancellation so
// a stalled transport cannot block a caller indefinitely.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(ctx context.Context, msg OutboundMessage) error
	OnOutbound(channelName string, handler func(ctx context.Context, msg OutboundMessage) error)
	Close()
}
