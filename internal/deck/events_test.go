package deck_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/deck"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := deck.NewMemoryEventLogger()

	err := logger.LogEvent(deck.Event{
		DeckID:    "sub-1",
		LearnerID: "learner-1",
		EventType: deck.EventSlideChanged,
		Data: map[string]any{
			"to": 2,
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != deck.EventSlideChanged {
		t.Errorf("EventType = %q, want %s", events[0].EventType, deck.EventSlideChanged)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if events[0].ID == "" {
		t.Error("ID should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := deck.NewMemoryEventLogger()
	if err := logger.LogEvent(deck.Event{DeckID: "sub-1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := deck.NewPostgresEventLogger(nil)

	err := logger.LogEvent(deck.Event{
		DeckID:    "sub-1",
		EventType: deck.EventDeckReset,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestSlogEventLogger_RequiresType(t *testing.T) {
	var logger deck.SlogEventLogger
	if err := logger.LogEvent(deck.Event{DeckID: "sub-1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
	if err := logger.LogEvent(deck.Event{DeckID: "sub-1", EventType: deck.EventDeckReset}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
}

func TestAsyncEventLogger_DeliversOnClose(t *testing.T) {
	mem := deck.NewMemoryEventLogger()
	logger := deck.NewAsyncEventLogger(mem, 0)

	for _, typ := range []string{deck.EventSlideChanged, deck.EventAdvanceBlocked, deck.EventDeckReset} {
		if err := logger.LogEvent(deck.Event{DeckID: "sub-1", EventType: typ}); err != nil {
			t.Fatalf("LogEvent(%s) error = %v", typ, err)
		}
	}
	if err := logger.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events := mem.Events()
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[2].EventType != deck.EventDeckReset {
		t.Errorf("last EventType = %q, want %s", events[2].EventType, deck.EventDeckReset)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped when queued")
	}

	err := logger.LogEvent(deck.Event{DeckID: "sub-1", EventType: deck.EventSlideChanged})
	if !errors.Is(err, deck.ErrEventLoggerClosed) {
		t.Errorf("LogEvent() after Close error = %v, want ErrEventLoggerClosed", err)
	}
	if err := logger.Close(t.Context()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestAsyncEventLogger_DropsWhenFull(t *testing.T) {
	slow := &blockingLogger{release: make(chan struct{})}
	logger := deck.NewAsyncEventLogger(slow, 1)

	var full bool
	for range 3 {
		err := logger.LogEvent(deck.Event{DeckID: "sub-1", EventType: deck.EventSlideChanged})
		if errors.Is(err, deck.ErrEventBufferFull) {
			full = true
			break
		}
		if err != nil {
			t.Fatalf("LogEvent() error = %v", err)
		}
	}
	if !full {
		t.Error("LogEvent() never reported ErrEventBufferFull")
	}

	close(slow.release)
	if err := logger.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestAsyncEventLogger_RequiresType(t *testing.T) {
	logger := deck.NewAsyncEventLogger(deck.NopEventLogger{}, 1)
	defer logger.Close(t.Context())

	if err := logger.LogEvent(deck.Event{DeckID: "sub-1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}
