package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clarabot/internal/domain"
)

// memLog is an in-memory ConversationLog for tests.
type memLog struct {
	mu     sync.Mutex
	turns  map[string][]domain.Turn
	nextID int64

	appendErr error
	readErr   error
}

func newMemLog() *memLog {
	return &memLog{turns: make(map[string][]domain.Turn)}
}

func (m *memLog) Append(ctx context.Context, conversationID string, role domain.Role, text string) (domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return domain.Turn{}, m.appendErr
	}
	if text == "" {
		return domain.Turn{}, domain.ErrEmptyText
	}
	m.nextID++
	t := domain.Turn{
		ID:             m.nextID,
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	m.turns[conversationID] = append(m.turns[conversationID], t)
	return t, nil
}

func (m *memLog) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	all := m.turns[conversationID]
	n := len(all)
	if limit < n {
		n = limit
	}
	// Newest first.
	out := make([]domain.Turn, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memLog) Close() error { return nil }

func (m *memLog) count(conversationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns[conversationID])
}

func seedTurns(t *testing.T, log *memLog, conversationID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		if _, err := log.Append(context.Background(), conversationID, role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWindowBuild_AscendingOrder(t *testing.T) {
	log := newMemLog()
	seedTurns(t, log, "c1", 6)

	w := NewWindowBuilder(log, 10)
	turns, err := w.Build(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 6 {
		t.Fatalf("expected 6 turns, got %d", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].ID <= turns[i-1].ID {
			t.Errorf("window not ascending at %d: %d after %d", i, turns[i].ID, turns[i-1].ID)
		}
	}
	if turns[0].Text != "turn 0" {
		t.Errorf("expected oldest turn first, got %q", turns[0].Text)
	}
}

func TestWindowBuild_BoundedToMostRecent(t *testing.T) {
	log := newMemLog()
	seedTurns(t, log, "c1", 14)

	w := NewWindowBuilder(log, 10)
	turns, err := w.Build(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(turns))
	}
	// Turns 0..3 fall outside the window.
	if turns[0].Text != "turn 4" {
		t.Errorf("expected window to start at turn 4, got %q", turns[0].Text)
	}
	if turns[9].Text != "turn 13" {
		t.Errorf("expected newest turn last, got %q", turns[9].Text)
	}
}

func TestWindowBuild_EmptyConversation(t *testing.T) {
	w := NewWindowBuilder(newMemLog(), 10)
	turns, err := w.Build(context.Background(), "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty window, got %d turns", len(turns))
	}
}

func TestWindowBuild_StoreError(t *testing.T) {
	log := newMemLog()
	log.readErr = errors.New("boom")

	w := NewWindowBuilder(log, 10)
	if _, err := w.Build(context.Background(), "c1"); err == nil {
		t.Error("expected store error to propagate")
	}
}

func TestNewWindowBuilder_DefaultSize(t *testing.T) {
	w := NewWindowBuilder(newMemLog(), 0)
	if w.Size() != DefaultWindowSize {
		t.Errorf("expected default size %d, got %d", DefaultWindowSize, w.Size())
	}
}
