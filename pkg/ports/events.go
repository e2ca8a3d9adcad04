package ports

import (
	"context"
	"time"
)

// EventType identifies a run or item lifecycle transition
type EventType string

const (
	EventTypeRunSubmitted  EventType = "run.submitted"
	EventTypeRunStarted    EventType = "run.started"
	EventTypeRunCompleted  EventType = "run.completed"
	EventTypeRunFailed     EventType = "run.failed"
	EventTypeRunCancelled  EventType = "run.cancelled"
	EventTypeItemInFlight  EventType = "item.in_flight"
	EventTypeItemCompleted EventType = "item.completed"
	EventTypeItemFailed    EventType = "item.failed"
)

const (
	// TopicRuns carries run.submitted work items. Subscribers sharing a
	// consumer group split the work between them.
	TopicRuns = "run.events"

	// TopicProgress carries every other run and item transition. Every
	// subscriber sees every event.
	TopicProgress = "run.progress"
)

// Event is a message on the event bus
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler processes one event
type EventHandler func(ctx context.Context, event Event) error

// EventBus publishes and delivers events by topic
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}
