package domain

import "context"

// ConversationLog is the durable, append-only turn log backing every
// conversation. Each call goes straight to the store: there is no
// local caching, so a read reflects the backend state at call time.
type ConversationLog interface {
	// Append writes one immutable turn and returns it with its
	// assigned ID and timestamp. Empty text fails with ErrEmptyText;
	// an unreachable backend wraps ErrStoreUnavailable. A conversation
	// is created implicitly on its first append.
	Append(ctx context.Context, conversationID string, role Role, text string) (Turn, error)

	// RecentTurns returns up to limit most recent turns in descending
	// time order (insertion order breaks ties). An unknown
	// conversation yields an empty slice, never an error.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)

	Close() error
}
