// ABOUTME: Mock remote store implementation for testing
// ABOUTME: In-memory tables with failure injection, latency and change feed control

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/remote"
)

// Ensure MockStore implements remote.Store.
var _ remote.Store = (*MockStore)(nil)

// Mock operation names used for failure injection and call counting.
const (
	MockOpFetch     = "fetch"
	MockOpGet       = "get"
	MockOpInsert    = "insert"
	MockOpUpdate    = "update"
	MockOpDelete    = "delete"
	MockOpSubscribe = "subscribe"
)

type mockFailure struct {
	op         string
	collection entity.Collection // empty matches any collection
	err        error
}

// MockStore is an in-memory remote.Store for testing.
type MockStore struct {
	mu           sync.Mutex
	rows         map[string][]*entity.Entity // keyed by collection/user, newest first
	failures     []mockFailure
	delays       map[string]time.Duration
	calls        map[string]int
	suppressEcho bool
	seq          int64

	hub *Hub
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		rows:   make(map[string][]*entity.Entity),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
		hub:    NewHub(nil),
	}
}

// Seed stores rows for a user without emitting change events. Rows are
// given newest first, as FetchCollection returns them.
func (m *MockStore) Seed(c entity.Collection, userID string, rows ...*entity.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := hubKey(c, userID)
	for _, r := range rows {
		e := r.Clone()
		e.UserID = userID
		m.rows[key] = append(m.rows[key], e)
	}
}

// FailNext makes the next call of op (on collection c, or any collection
// when c is empty) fail with err.
func (m *MockStore) FailNext(op string, c entity.Collection, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, mockFailure{op: op, collection: c, err: err})
}

// SetDelay makes every call of op wait d (or until ctx is done).
func (m *MockStore) SetDelay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// SetSuppressEcho controls whether a writer's own subscriptions see its writes.
func (m *MockStore) SetSuppressEcho(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressEcho = v
}

// Calls returns how many times op was invoked.
func (m *MockStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Hub exposes the change hub so tests can disconnect or count subscribers.
func (m *MockStore) Hub() *Hub {
	return m.hub
}

// Emit publishes a raw change event to the user's subscribers without
// touching stored rows. Useful for malformed or foreign events.
func (m *MockStore) Emit(userID string, ev remote.ChangeEvent) {
	m.hub.Publish(userID, "", false, ev)
}

// enter counts the call, applies configured latency and returns an injected
// failure if one matches. Must be called without mu held.
func (m *MockStore) enter(ctx context.Context, op string, c entity.Collection) error {
	m.mu.Lock()
	m.calls[op]++
	delay := m.delays[op]
	var injected error
	for i, f := range m.failures {
		if f.op == op && (f.collection == "" || f.collection == c) {
			injected = f.err
			m.failures = append(m.failures[:i], m.failures[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return remote.Classify(op, c, ctx.Err())
		}
	}
	return injected
}

// FetchCollection returns copies of the user's rows, newest first.
func (m *MockStore) FetchCollection(ctx context.Context, c entity.Collection, userID string) ([]*entity.Entity, error) {
	if err := m.enter(ctx, MockOpFetch, c); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rows[hubKey(c, userID)]
	out := make([]*entity.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Get retrieves a row by ID.
func (m *MockStore) Get(ctx context.Context, c entity.Collection, userID, id string) (*entity.Entity, error) {
	if err := m.enter(ctx, MockOpGet, c); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexLocked(c, userID, id); i >= 0 {
		return m.rows[hubKey(c, userID)][i].Clone(), nil
	}
	return nil, fmt.Errorf("%s %s: %w", c.Type(), id, remote.ErrNotFound)
}

func (m *MockStore) indexLocked(c entity.Collection, userID, id string) int {
	for i, r := range m.rows[hubKey(c, userID)] {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Mutate applies a write and publishes the change.
func (m *MockStore) Mutate(ctx context.Context, mu remote.Mutation) (*entity.Entity, error) {
	if err := m.enter(ctx, string(mu.Op), mu.Collection); err != nil {
		return nil, err
	}
	if !mu.Collection.Valid() || mu.UserID == "" {
		return nil, &remote.RejectedMutationError{Op: mu.Op, Collection: mu.Collection, Reason: "invalid mutation"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := hubKey(mu.Collection, mu.UserID)
	var ev remote.ChangeEvent
	switch mu.Op {
	case remote.OpInsert:
		if mu.Row == nil || mu.Row.Title == "" {
			return nil, &remote.RejectedMutationError{Op: mu.Op, Collection: mu.Collection, Reason: "title is required"}
		}
		e := mu.Row.Clone()
		e.UserID = mu.UserID
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if m.indexLocked(mu.Collection, mu.UserID, e.ID) >= 0 {
			return nil, &remote.RejectedMutationError{Op: mu.Op, Collection: mu.Collection, Reason: "duplicate id"}
		}
		now := m.tickLocked()
		e.CreatedAt, e.UpdatedAt = now, now
		m.rows[key] = append([]*entity.Entity{e}, m.rows[key]...)
		ev = remote.ChangeEvent{Collection: mu.Collection, Type: remote.ChangeInsert, New: e}

	case remote.OpUpdate:
		i := m.indexLocked(mu.Collection, mu.UserID, mu.ID)
		if i < 0 {
			return nil, fmt.Errorf("%s %s: %w", mu.Collection.Type(), mu.ID, remote.ErrNotFound)
		}
		old := m.rows[key][i]
		next, err := old.WithPatch(mu.Patch)
		if err != nil {
			return nil, &remote.RejectedMutationError{Op: mu.Op, Collection: mu.Collection, Reason: err.Error(), Err: err}
		}
		next.UpdatedAt = m.tickLocked()
		m.rows[key][i] = next
		ev = remote.ChangeEvent{Collection: mu.Collection, Type: remote.ChangeUpdate, New: next, Old: old}

	case remote.OpDelete:
		i := m.indexLocked(mu.Collection, mu.UserID, mu.ID)
		if i < 0 {
			return nil, fmt.Errorf("%s %s: %w", mu.Collection.Type(), mu.ID, remote.ErrNotFound)
		}
		old := m.rows[key][i]
		m.rows[key] = append(m.rows[key][:i:i], m.rows[key][i+1:]...)
		ev = remote.ChangeEvent{Collection: mu.Collection, Type: remote.ChangeDelete, Old: old}

	default:
		return nil, &remote.RejectedMutationError{Op: mu.Op, Collection: mu.Collection, Reason: "unknown op"}
	}

	// Publish under mu so feed order matches write order
	m.hub.Publish(mu.UserID, mu.Origin, m.suppressEcho, ev)
	return ev.Row().Clone(), nil
}

// tickLocked returns a strictly increasing timestamp so rows written in the
// same instant still order and fingerprint distinctly.
func (m *MockStore) tickLocked() time.Time {
	m.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Millisecond)
}

// Subscribe opens a change feed for one collection of one user.
func (m *MockStore) Subscribe(ctx context.Context, f remote.Filter, h remote.Handler) (remote.Subscription, error) {
	if err := m.enter(ctx, MockOpSubscribe, f.Collection); err != nil {
		return nil, err
	}
	return m.hub.Subscribe(ctx, f, h)
}
