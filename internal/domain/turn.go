package domain

import "time"

// Role identifies which side of a conversation produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one immutable logged message in a conversation. Turns are
// created exactly once by the turn processor and never updated or
// deleted. CreatedAt is assigned at write time and is non-decreasing
// within a conversation; ID breaks ties in insertion order.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}
