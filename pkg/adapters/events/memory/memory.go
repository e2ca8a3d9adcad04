package memory

import (
	"context"
	"sync"

	"github.com/aescanero/factllm/pkg/ports"
	"go.uber.org/zap"
)

const subscriberBuffer = 256

// subscription delivers events to one handler in publish order
type subscription struct {
	topic   string
	handler ports.EventHandler
	events  chan ports.Event
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// InMemoryEventBus implements EventBus using in-process fan-out. Every
// subscriber of a topic receives every event published to it, in order.
type InMemoryEventBus struct {
	subscribers map[string][]*subscription
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		subscribers: make(map[string][]*subscription),
		logger:      logger,
	}
}

// Publish publishes an event to all subscribers of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	e.mu.RLock()
	subs := make([]*subscription, len(e.subscribers[topic]))
	copy(subs, e.subscribers[topic])
	e.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- event:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe subscribes to events on a specific topic until ctx is done
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		topic:   topic,
		handler: handler,
		events:  make(chan ports.Event, subscriberBuffer),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	go e.deliver(ctx, sub)
	return nil
}

func (e *InMemoryEventBus) deliver(ctx context.Context, sub *subscription) {
	defer e.remove(sub)

	for {
		select {
		case <-ctx.Done():
			sub.stop()
			return
		case <-sub.done:
			return
		case event := <-sub.events:
			if err := sub.handler(ctx, event); err != nil {
				e.logger.Warn("event handler error",
					zap.String("topic", sub.topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}
	}
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	subs := e.subscribers[topic]
	delete(e.subscribers, topic)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

// Close closes the event bus and cleans up resources
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	all := e.subscribers
	e.subscribers = make(map[string][]*subscription)
	e.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.stop()
		}
	}
	return nil
}

// remove drops a single subscription
func (e *InMemoryEventBus) remove(target *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[target.topic]
	for i, sub := range subs {
		if sub == target {
			e.subscribers[target.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

var _ ports.EventBus = (*InMemoryEventBus)(nil)
