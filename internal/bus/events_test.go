package bus

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := NewEventBus(testLogger())

	var received int32
	eb.On(EventTurnLogged, func(e Event) {
		atomic.AddInt32(&received, 1)
	})

	eb.Emit(Event{Type: EventTurnLogged, Payload: map[string]any{"conversation": "U1"}})

	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("expected 1 event received, got %d", received)
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testLogger())

	var count int32
	eb.On("*", func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: EventTurnLogged})
	eb.Emit(Event{Type: EventTurnFailed})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_Off(t *testing.T) {
	eb := NewEventBus(testLogger())

	var count int32
	id := eb.On(EventTurnReplied, func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	eb.Emit(Event{Type: EventTurnReplied})
	eb.Off(EventTurnReplied, id)
	eb.Emit(Event{Type: EventTurnReplied})

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected 1 after unsubscribe, got %d", count)
	}
}

func TestEventBus_HandlerPanicContained(t *testing.T) {
	eb := NewEventBus(testLogger())

	eb.On(EventTurnFailed, func(e Event) {
		panic("handler bug")
	})

	var after int32
	eb.On(EventTurnFailed, func(e Event) {
		atomic.AddInt32(&after, 1)
	})

	eb.Emit(Event{Type: EventTurnFailed})

	if atomic.LoadInt32(&after) != 1 {
		t.Error("panicking handler should not prevent later handlers")
	}
}

func TestEventBus_Replay(t *testing.T) {
	eb := NewEventBus(testLogger())

	start := time.Now().Add(-time.Second)
	eb.Emit(Event{Type: EventMessageFiltered})
	eb.Emit(Event{Type: EventTurnLogged})
	eb.Emit(Event{Type: EventTurnLogged})

	if got := len(eb.Replay(EventTurnLogged, start)); got != 2 {
		t.Errorf("expected 2 replayed events, got %d", got)
	}
	if got := len(eb.Replay("*", start)); got != 3 {
		t.Errorf("expected 3 replayed events for wildcard, got %d", got)
	}
	if eb.HistoryLen() != 3 {
		t.Errorf("expected history 3, got %d", eb.HistoryLen())
	}
}
