// ABOUTME: Topic-based publish/subscribe bus fanning data changes out to UI consumers
// ABOUTME: Delivery is synchronous, in registration order, with handler panics isolated

package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler receives events for a topic.
type Handler func(Event)

type registration struct {
	id string
	h  Handler
}

// Bus provides in-process pub/sub keyed by Topic.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]registration
	logger      *slog.Logger
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[Topic][]registration),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers h for topic and returns a subscription ID for
// Unsubscribe. Topics need no prior declaration.
func (b *Bus) Subscribe(topic Topic, h Handler) string {
	id := uuid.New().String()

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], registration{id: id, h: h})
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic.String(), "sub_id", id)
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(topic Topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.subscribers[topic]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.subscribers, topic)
		} else {
			b.subscribers[topic] = next
		}
		b.logger.Debug("subscriber removed", "topic", topic.String(), "sub_id", id)
		return
	}
}

// Publish calls every handler registered for ev.Topic() in registration
// order. A panicking handler is logged and skipped; the rest still run.
// Handlers may subscribe, unsubscribe or publish from inside a callback.
func (b *Bus) Publish(ev Event) {
	topic := ev.Topic()

	b.mu.RLock()
	targets := b.subscribers[topic]
	b.mu.RUnlock()

	for _, r := range targets {
		b.deliver(topic, r, ev)
	}
}

func (b *Bus) deliver(topic Topic, r registration, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("subscriber panicked",
				"topic", topic.String(),
				"sub_id", r.id,
				"panic", rec)
		}
	}()
	r.h(ev)
}

// Count returns the number of subscribers for topic.
func (b *Bus) Count(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Reset removes every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[Topic][]registration)
	b.logger.Debug("bus reset")
}
