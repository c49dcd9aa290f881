// ABOUTME: Entity value type and collection/type vocabulary for the sync layer
// ABOUTME: Entities are immutable snapshots; changes always produce a new *Entity

package entity

import (
	"fmt"
	"maps"
	"time"
)

// Collection names one of the per-user tables held in memory.
type Collection string

// Collection names, matching the remote store's table names.
const (
	Areas     Collection = "areas"
	Projects  Collection = "projects"
	Tasks     Collection = "tasks"
	Resources Collection = "resources"
	Archives  Collection = "archives"
	Goals     Collection = "goals"
	Habits    Collection = "habits"
)

// Collections lists every collection in load order.
var Collections = []Collection{Areas, Projects, Tasks, Resources, Archives, Goals, Habits}

// Type is the singular entity kind stored in a collection.
type Type string

// Entity types
const (
	TypeArea     Type = "area"
	TypeProject  Type = "project"
	TypeTask     Type = "task"
	TypeResource Type = "resource"
	TypeArchive  Type = "archive"
	TypeGoal     Type = "goal"
	TypeHabit    Type = "habit"
)

var collectionTypes = map[Collection]Type{
	Areas:     TypeArea,
	Projects:  TypeProject,
	Tasks:     TypeTask,
	Resources: TypeResource,
	Archives:  TypeArchive,
	Goals:     TypeGoal,
	Habits:    TypeHabit,
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	_, ok := collectionTypes[c]
	return ok
}

// Type returns the entity type stored in c, or "" for unknown collections.
func (c Collection) Type() Type {
	return collectionTypes[c]
}

// Valid reports whether t is one of the known entity types.
func (t Type) Valid() bool {
	return t.Collection() != ""
}

// Collection returns the collection holding entities of type t.
func (t Type) Collection() Collection {
	for c, ct := range collectionTypes {
		if ct == t {
			return c
		}
	}
	return ""
}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	c := Collection(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", s)
	}
	return c, nil
}

// ParseType validates an entity type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Parent reference column names.
const (
	FieldProjectID = "project_id"
	FieldAreaID    = "area_id"
	FieldGoalID    = "goal_id"
)

// Entity is one row of a collection. Values handed out by the sync layer are
// shared snapshots and must not be modified; use WithPatch or Clone.
type Entity struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     *time.Time
	ProjectID   string
	AreaID      string
	GoalID      string

	// Archive records only
	Reason       string
	OriginalID   string
	OriginalType Type

	// Extra holds type-specific columns without a dedicated field
	// (habit frequency, goal metrics, resource urls, ...).
	Extra map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	cp := *e
	if e.DueDate != nil {
		d := *e.DueDate
		cp.DueDate = &d
	}
	if e.Extra != nil {
		cp.Extra = maps.Clone(e.Extra)
	}
	return &cp
}

// Field returns the value of a parent reference column, or "" if name is
// not a reference column.
func (e *Entity) Field(name string) string {
	switch name {
	case FieldProjectID:
		return e.ProjectID
	case FieldAreaID:
		return e.AreaID
	case FieldGoalID:
		return e.GoalID
	}
	return ""
}

// Dataset is a full snapshot of every collection.
type Dataset map[Collection][]*Entity

// Len returns the total number of entities across collections.
func (d Dataset) Len() int {
	n := 0
	for _, rows := range d {
		n += len(rows)
	}
	return n
}
