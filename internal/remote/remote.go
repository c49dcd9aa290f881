// ABOUTME: Contract for the remote per-user table store consumed by the sync layer
// ABOUTME: Defines fetch/mutate/subscribe operations and the change event shape

package remote

import (
	"context"

	"github.com/2389/para-sync/internal/entity"
)

// Op is a mutation kind sent to the remote store.
type Op string

// Mutation ops
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeType is the kind of change reported by the remote change feed.
type ChangeType string

// Change types as delivered by the remote feed.
const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Valid reports whether t is a change type the client understands.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// ChangeEvent is one notification from the remote change feed.
// New is set for inserts and updates, Old for deletes (and updates when
// the remote provides it).
type ChangeEvent struct {
	Collection entity.Collection
	Type       ChangeType
	New        *entity.Entity
	Old        *entity.Entity
}

// Row returns the row the event is about: New, or Old for deletes.
func (e ChangeEvent) Row() *entity.Entity {
	if e.New != nil {
		return e.New
	}
	return e.Old
}

// Mutation describes one write against the remote store.
type Mutation struct {
	Collection entity.Collection
	Op         Op
	UserID     string
	// Origin identifies the writing client so the remote can suppress the
	// echo of its own write when configured to.
	Origin string
	ID     string         // update, delete
	Row    *entity.Entity // insert
	Patch  entity.Patch   // update
}

// Filter scopes a change subscription.
type Filter struct {
	Collection entity.Collection
	UserID     string
	Origin     string
}

// Handler receives change events. Implementations must not block for long:
// the remote delivers events for one subscription in order.
type Handler func(ChangeEvent)

// Subscription is an open change feed for one collection.
type Subscription interface {
	// Done is closed when the subscription ends, either by Close or by the
	// remote disconnecting it.
	Done() <-chan struct{}
	// Err reports why the subscription ended; nil after Close.
	Err() error
	Close() error
}

// Store is the remote multi-table store. All rows are scoped to a user.
type Store interface {
	// FetchCollection returns the user's rows, newest first.
	FetchCollection(ctx context.Context, c entity.Collection, userID string) ([]*entity.Entity, error)
	// Get returns one row, or ErrNotFound.
	Get(ctx context.Context, c entity.Collection, userID, id string) (*entity.Entity, error)
	// Mutate applies a write and returns the persisted row (the removed row
	// for deletes).
	Mutate(ctx context.Context, m Mutation) (*entity.Entity, error)
	// Subscribe opens a change feed filtered to one collection and user.
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
}
