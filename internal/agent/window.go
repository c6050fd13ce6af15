package agent

import (
	"context"

	"clarabot/internal/domain"
)

// DefaultWindowSize is the reference context window: the 10 most
// recent turns of a conversation.
const DefaultWindowSize = 10

// WindowBuilder assembles the bounded context window for a completion
// call. The window is rebuilt from the store on every inbound message,
// never cached across turns.
type WindowBuilder struct {
	log  domain.ConversationLog
	size int
}

func NewWindowBuilder(log domain.ConversationLog, size int) *WindowBuilder {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &WindowBuilder{log: log, size: size}
}

// Size returns the fixed window size.
func (w *WindowBuilder) Size() int { return w.size }

// Build returns up to Size() most recent turns in ascending
// chronological order. The store is queried newest-first for
// efficiency, so the result is reversed before returning. A
// conversation with fewer turns yields all of them, unpadded.
func (w *WindowBuilder) Build(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	turns, err := w.log.RecentTurns(ctx, conversationID, w.size)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
