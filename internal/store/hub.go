// ABOUTME: In-memory change feed hub shared by the remote store implementations
// ABOUTME: Fans committed row changes out to subscribers of a (collection, user) key

package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/remote"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 256
)

// ErrSubscriberOverflow ends a subscription whose consumer fell behind.
// The client is expected to resubscribe and reload.
var ErrSubscriberOverflow = errors.New("subscriber fell behind the change feed")

// ErrDisconnected ends a subscription dropped by the remote side.
var ErrDisconnected = errors.New("change feed disconnected")

// Hub provides ordered per-subscriber delivery of change events.
// A slow subscriber is disconnected rather than silently skipped, since a
// gap in a change feed is only recoverable by a reload.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscription // collection/user -> subID -> sub
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]*subscription),
		logger:      logger.With("component", "change_hub"),
	}
}

func hubKey(c entity.Collection, userID string) string {
	return string(c) + "/" + userID
}

// subscription is one open change feed. Events are handed to the handler
// from a dedicated goroutine so a handler never blocks the writer.
type subscription struct {
	hub    *Hub
	key    string
	id     string
	origin string
	ch     chan remote.ChangeEvent
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.hub.remove(s, nil)
	return nil
}

// end marks the subscription finished. Returns false if it already was.
func (s *subscription) end(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.err = err
	close(s.done)
	return true
}

func (s *subscription) run(h remote.Handler) {
	for {
		select {
		case ev := <-s.ch:
			h(ev)
		case <-s.done:
			return
		}
	}
}

// Subscribe registers h for changes matching f. The subscription is
// removed when ctx is cancelled.
func (b *Hub) Subscribe(ctx context.Context, f remote.Filter, h remote.Handler) (remote.Subscription, error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}
	sub := &subscription{
		hub:    b,
		key:    hubKey(f.Collection, f.UserID),
		id:     uuid.New().String(),
		origin: f.Origin,
		ch:     make(chan remote.ChangeEvent, subscriberBufferSize),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if _, ok := b.subscribers[sub.key]; !ok {
		b.subscribers[sub.key] = make(map[string]*subscription)
	}
	b.subscribers[sub.key][sub.id] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "key", sub.key, "sub_id", sub.id)

	go sub.run(h)

	// Auto-cleanup on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			b.remove(sub, nil)
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish delivers ev to every subscriber of (ev.Collection, userID).
// When suppressEcho is set, subscribers opened with the same non-empty
// origin are skipped.
func (b *Hub) Publish(userID, origin string, suppressEcho bool, ev remote.ChangeEvent) {
	b.mu.RLock()
	subs := b.subscribers[hubKey(ev.Collection, userID)]
	targets := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		if suppressEcho && origin != "" && sub.origin == origin {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("disconnecting slow subscriber",
				"key", sub.key,
				"sub_id", sub.id)
			b.remove(sub, ErrSubscriberOverflow)
		}
	}
}

// Disconnect ends every subscription for (c, userID) with ErrDisconnected,
// as a dropped network connection would.
func (b *Hub) Disconnect(c entity.Collection, userID string) int {
	b.mu.RLock()
	subs := b.subscribers[hubKey(c, userID)]
	targets := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.remove(sub, ErrDisconnected)
	}
	return len(targets)
}

// Count returns the number of open subscriptions for (c, userID).
func (b *Hub) Count(c entity.Collection, userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[hubKey(c, userID)])
}

func (b *Hub) remove(sub *subscription, reason error) {
	b.mu.Lock()
	if subs, ok := b.subscribers[sub.key]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.subscribers, sub.key)
		}
	}
	b.mu.Unlock()

	if sub.end(reason) {
		b.logger.Debug("subscriber removed", "key", sub.key, "sub_id", sub.id, "reason", reason)
	}
}

// Close ends all subscriptions.
func (b *Hub) Close() {
	b.mu.Lock()
	var all []*subscription
	for key, subs := range b.subscribers {
		for _, sub := range subs {
			all = append(all, sub)
		}
		delete(b.subscribers, key)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.end(nil)
	}
	b.logger.Debug("hub closed")
}
