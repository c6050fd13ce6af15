package domain

import "time"

// InboundMessage is one message received from a transport channel.
// ConversationID is the transport-assigned origin identifier and is
// forwarded unchanged; eligibility filtering happens in the gateway.
type InboundMessage struct {
	Channel        string
	ConversationID string
	SenderID       string
	Text           string
	Timestamp      time.Time
}

// OutboundMessage is one reply to deliver through a transport channel.
type OutboundMessage struct {
	Channel        string
	ConversationID string
	Text           string
}
