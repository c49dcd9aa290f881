// ABOUTME: Relationship Indexer deriving parent->children lookups from collection snapshots
// ABOUTME: Rebuild is pure and deterministic so it can run after every change

package index

import (
	"slices"

	"github.com/2389/para-sync/internal/entity"
)

// Relation names used by the default indexer.
const (
	ProjectTasks  = "projectTasks"
	AreaProjects  = "areaProjects"
	AreaResources = "areaResources"
)

// Relation declares one parent/child pair: children in Child reference a
// parent in Parent through Field.
type Relation struct {
	Name   string
	Parent entity.Collection
	Child  entity.Collection
	Field  string
}

// DefaultRelations are the relationships the UI reads.
var DefaultRelations = []Relation{
	{Name: ProjectTasks, Parent: entity.Projects, Child: entity.Tasks, Field: entity.FieldProjectID},
	{Name: AreaProjects, Parent: entity.Areas, Child: entity.Projects, Field: entity.FieldAreaID},
	{Name: AreaResources, Parent: entity.Areas, Child: entity.Resources, Field: entity.FieldAreaID},
}

// Indexer builds indexes for a fixed set of relations.
type Indexer struct {
	relations []Relation
}

// New creates an indexer. With no relations, DefaultRelations are used.
func New(relations ...Relation) *Indexer {
	if len(relations) == 0 {
		relations = DefaultRelations
	}
	return &Indexer{relations: append([]Relation(nil), relations...)}
}

// Relations returns the relations this indexer maintains.
func (x *Indexer) Relations() []Relation {
	return append([]Relation(nil), x.relations...)
}

// Index is an immutable set of parent->children maps.
type Index struct {
	maps map[string]map[string][]*entity.Entity
}

// Empty returns an index with no entries.
func Empty() *Index {
	return &Index{maps: make(map[string]map[string][]*entity.Entity)}
}

// Rebuild computes every relation from scratch. Children keep the order of
// their collection, so equal input always yields an equal index.
func (x *Indexer) Rebuild(data entity.Dataset) *Index {
	idx := Empty()
	for _, rel := range x.relations {
		m := make(map[string][]*entity.Entity)
		for _, child := range data[rel.Child] {
			parentID := child.Field(rel.Field)
			if parentID == "" {
				continue
			}
			m[parentID] = append(m[parentID], child)
		}
		idx.maps[rel.Name] = m
	}
	return idx
}

// Lookup returns the children of parentID under relation name. Unknown
// relations and parents yield an empty slice. The slice is shared with the
// index and must not be modified; appending to it copies.
func (i *Index) Lookup(name, parentID string) []*entity.Entity {
	if i == nil {
		return []*entity.Entity{}
	}
	if children, ok := i.maps[name][parentID]; ok {
		return slices.Clip(children)
	}
	return []*entity.Entity{}
}

// Parents returns the number of parents with at least one child under name.
func (i *Index) Parents(name string) int {
	if i == nil {
		return 0
	}
	return len(i.maps[name])
}

// Contains reports whether id appears as a child anywhere in the index.
func (i *Index) Contains(id string) bool {
	if i == nil {
		return false
	}
	for _, m := range i.maps {
		for _, children := range m {
			for _, c := range children {
				if c.ID == id {
					return true
				}
			}
		}
	}
	return false
}

// Equal reports whether two indexes hold the same children, by identity
// and order, for every relation and parent.
func (i *Index) Equal(other *Index) bool {
	if i == nil || other == nil {
		return i == other
	}
	if len(i.maps) != len(other.maps) {
		return false
	}
	for name, m := range i.maps {
		om, ok := other.maps[name]
		if !ok || len(m) != len(om) {
			return false
		}
		for parent, children := range m {
			oc, ok := om[parent]
			if !ok || len(children) != len(oc) {
				return false
			}
			for k := range children {
				if children[k] != oc[k] {
					return false
				}
			}
		}
	}
	return true
}
