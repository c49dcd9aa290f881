// ABOUTME: In-memory Collection Store holding the authoritative client copy of each collection
// ABOUTME: Applies insert/update/delete changes with copy-on-write slices

package collection

import (
	"log/slog"
	"slices"

	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/remote"
)

// Store keeps one ordered slice per collection. Slices are never modified
// after being handed out: every change builds a new slice, so a snapshot
// returned by Get stays valid while the store moves on.
//
// Store is not safe for concurrent use; its owner serializes access.
type Store struct {
	data   map[entity.Collection][]*entity.Entity
	logger *slog.Logger
}

// New creates an empty store. Pass nil logger for default.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		data:   make(map[entity.Collection][]*entity.Entity),
		logger: logger.With("component", "collection_store"),
	}
}

// Set replaces a collection wholesale.
func (s *Store) Set(c entity.Collection, rows []*entity.Entity) {
	cp := make([]*entity.Entity, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			cp = append(cp, r)
		}
	}
	s.data[c] = cp
}

// Get returns the current collection, or an empty slice if unset. The
// slice is shared and must not be modified; it is clipped so appending to
// it copies.
func (s *Store) Get(c entity.Collection) []*entity.Entity {
	if rows, ok := s.data[c]; ok {
		return slices.Clip(rows)
	}
	return []*entity.Entity{}
}

// Find returns the entity with the given id, if present.
func (s *Store) Find(c entity.Collection, id string) (*entity.Entity, bool) {
	i := indexOf(s.data[c], id)
	if i < 0 {
		return nil, false
	}
	return s.data[c][i], true
}

// ApplyChange applies one change to a collection and reports whether the
// collection changed.
//
// Insert prepends, or replaces in place when the id is already present so a
// redelivered insert never duplicates. Update replaces in place and prepends
// rows not yet known locally (created on another device). Delete removes by
// id. Unknown change types are logged and ignored.
func (s *Store) ApplyChange(c entity.Collection, t remote.ChangeType, row *entity.Entity) bool {
	if row == nil || row.ID == "" {
		s.logger.Warn("ignoring change without row id", "collection", c, "type", t)
		return false
	}

	rows := s.data[c]
	i := indexOf(rows, row.ID)

	switch t {
	case remote.ChangeInsert, remote.ChangeUpdate:
		if i >= 0 {
			s.data[c] = replaceAt(rows, i, row)
		} else {
			s.data[c] = prepend(rows, row)
		}
		return true

	case remote.ChangeDelete:
		if i < 0 {
			return false
		}
		s.data[c] = removeAt(rows, i)
		return true

	default:
		s.logger.Warn("ignoring unknown change type", "collection", c, "type", t, "id", row.ID)
		return false
	}
}

// Snapshot returns every collection, including empty ones for all known
// collections. The slices are shared and must not be modified.
func (s *Store) Snapshot() entity.Dataset {
	out := make(entity.Dataset, len(entity.Collections))
	for _, c := range entity.Collections {
		out[c] = s.Get(c)
	}
	return out
}

// Reset drops every collection.
func (s *Store) Reset() {
	s.data = make(map[entity.Collection][]*entity.Entity)
}

func indexOf(rows []*entity.Entity, id string) int {
	for i, r := range rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func replaceAt(rows []*entity.Entity, i int, row *entity.Entity) []*entity.Entity {
	out := make([]*entity.Entity, len(rows))
	copy(out, rows)
	out[i] = row
	return out
}

func prepend(rows []*entity.Entity, row *entity.Entity) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(rows)+1)
	out = append(out, row)
	return append(out, rows...)
}

func removeAt(rows []*entity.Entity, i int) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(rows)-1)
	out = append(out, rows[:i]...)
	return append(out, rows[i+1:]...)
}
