// ABOUTME: Closed set of events published on the subscription bus
// ABOUTME: Topics are typed values; String renders the legacy topic names

package bus

import (
	"fmt"

	"github.com/2389/para-sync/internal/entity"
)

// Kind discriminates topics.
type Kind int

// Topic kinds
const (
	KindLoaded Kind = iota + 1
	KindDataChanged
	KindCollectionChanged
	KindCreated
	KindUpdated
	KindDeleted
)

// Topic names a channel on the bus. Collection is set for
// KindCollectionChanged, Type for the entity lifecycle kinds.
type Topic struct {
	Kind       Kind
	Collection entity.Collection
	Type       entity.Type
}

// Lifecycle topics
var (
	TopicLoaded      = Topic{Kind: KindLoaded}
	TopicDataChanged = Topic{Kind: KindDataChanged}
)

// CollectionTopic is published after every applied change to c.
func CollectionTopic(c entity.Collection) Topic {
	return Topic{Kind: KindCollectionChanged, Collection: c}
}

// CreatedTopic is published after a successful create of type t.
func CreatedTopic(t entity.Type) Topic { return Topic{Kind: KindCreated, Type: t} }

// UpdatedTopic is published after a successful update of type t.
func UpdatedTopic(t entity.Type) Topic { return Topic{Kind: KindUpdated, Type: t} }

// DeletedTopic is published after a successful delete of type t.
func DeletedTopic(t entity.Type) Topic { return Topic{Kind: KindDeleted, Type: t} }

// String returns names like dataLoaded, tasksChanged or taskCreated.
func (t Topic) String() string {
	switch t.Kind {
	case KindLoaded:
		return "dataLoaded"
	case KindDataChanged:
		return "dataChanged"
	case KindCollectionChanged:
		return string(t.Collection) + "Changed"
	case KindCreated:
		return string(t.Type) + "Created"
	case KindUpdated:
		return string(t.Type) + "Updated"
	case KindDeleted:
		return string(t.Type) + "Deleted"
	}
	return fmt.Sprintf("topic(%d)", t.Kind)
}

// Event is implemented by the event structs below and nothing else.
// Handlers type-switch on the concrete value.
type Event interface {
	Topic() Topic
	isEvent()
}

// Loaded carries the full snapshot after a bulk load.
type Loaded struct {
	Data entity.Dataset
}

// DataChanged reports a changed collection on the catch-all topic.
type DataChanged struct {
	Collection entity.Collection
	Data       []*entity.Entity
}

// CollectionChanged reports a changed collection on its own topic.
type CollectionChanged struct {
	Collection entity.Collection
	Data       []*entity.Entity
}

// Created reports a row created through the mutation gateway.
type Created struct {
	Type   entity.Type
	Entity *entity.Entity
}

// Updated reports a row updated through the mutation gateway.
type Updated struct {
	Type   entity.Type
	Entity *entity.Entity
}

// Deleted reports a row deleted through the mutation gateway.
type Deleted struct {
	Type entity.Type
	ID   string
}

func (Loaded) Topic() Topic              { return TopicLoaded }
func (DataChanged) Topic() Topic         { return TopicDataChanged }
func (e CollectionChanged) Topic() Topic { return CollectionTopic(e.Collection) }
func (e Created) Topic() Topic           { return CreatedTopic(e.Type) }
func (e Updated) Topic() Topic           { return UpdatedTopic(e.Type) }
func (e Deleted) Topic() Topic           { return DeletedTopic(e.Type) }

func (Loaded) isEvent()            {}
func (DataChanged) isEvent()       {}
func (CollectionChanged) isEvent() {}
func (Created) isEvent()           {}
func (Updated) isEvent()           {}
func (Deleted) isEvent()           {}
