package deck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// DefaultEventBuffer is the queue size of an AsyncEventLogger.
const DefaultEventBuffer = 256

var (
	// ErrEventBufferFull is returned when an AsyncEventLogger drops an event.
	ErrEventBufferFull = errors.New("event buffer is full")
	// ErrEventLoggerClosed is returned for events logged after Close.
	ErrEventLoggerClosed = errors.New("event logger is closed")
)

// Deck event types.
const (
	EventSlideChanged       = "slide_changed"
	EventAdvanceBlocked     = "advance_blocked"
	EventSubmissionRecorded = "submission_recorded"
	EventDeckReset          = "deck_reset"
	EventSubmoduleCompleted = "submodule_completed"
)

// Event is an analytics record of something that happened in a deck.
type Event struct {
	ID        string
	DeckID    string
	LearnerID string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// SlogEventLogger writes events to the default logger at debug level. It
// backs deployments without a database.
type SlogEventLogger struct{}

func (SlogEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	slog.Debug("deck event",
		"type", event.EventType,
		"deck_id", event.DeckID,
		"learner_id", event.LearnerID,
		"data", event.Data,
	)
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// OfType returns the recorded events with the given type.
func (l *MemoryEventLogger) OfType(eventType string) []Event {
	var out []Event
	for _, e := range l.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// PostgresEventLogger inserts events into the deck_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.DeckID == "" {
		return fmt.Errorf("deck_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO deck_events (id, deck_id, learner_id, event_type, data, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6)`,
		id,
		event.DeckID,
		event.LearnerID,
		event.EventType,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("deck event logged",
		"type", event.EventType,
		"deck_id", event.DeckID,
		"learner_id", event.LearnerID,
	)
	return nil
}

// AsyncEventLogger queues events for a background worker so callers never
// wait on the wrapped logger. When the queue is full the event is dropped.
type AsyncEventLogger struct {
	next  EventLogger
	queue chan Event
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAsyncEventLogger starts the worker. A non-positive buffer selects
// DefaultEventBuffer.
func NewAsyncEventLogger(next EventLogger, buffer int) *AsyncEventLogger {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	l := &AsyncEventLogger{
		next:  next,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *AsyncEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrEventLoggerClosed
	}
	select {
	case l.queue <- event:
		return nil
	default:
		return ErrEventBufferFull
	}
}

// Close stops accepting events and waits until the queued ones are written
// or ctx ends.
func (l *AsyncEventLogger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining deck events: %w", ctx.Err())
	}
}

func (l *AsyncEventLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		if err := l.next.LogEvent(event); err != nil {
			slog.Warn("failed to write deck event",
				"type", event.EventType,
				"deck_id", event.DeckID,
				"error", err,
			)
		}
	}
}
