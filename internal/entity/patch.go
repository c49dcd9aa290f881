// ABOUTME: Column-keyed partial updates applied to Entity snapshots
// ABOUTME: Known columns map onto fields; unknown keys merge into Extra

package entity

import (
	"fmt"
	"time"
)

// Patch is a partial update keyed by column name.
type Patch map[string]any

// Columns with a dedicated Entity field. Identity, ownership and audit
// columns are not patchable.
var patchColumns = map[string]func(e *Entity, v any) error{
	"title":         stringSetter(func(e *Entity, s string) { e.Title = s }),
	"description":   stringSetter(func(e *Entity, s string) { e.Description = s }),
	"status":        stringSetter(func(e *Entity, s string) { e.Status = s }),
	"priority":      stringSetter(func(e *Entity, s string) { e.Priority = s }),
	FieldProjectID:  stringSetter(func(e *Entity, s string) { e.ProjectID = s }),
	FieldAreaID:     stringSetter(func(e *Entity, s string) { e.AreaID = s }),
	FieldGoalID:     stringSetter(func(e *Entity, s string) { e.GoalID = s }),
	"reason":        stringSetter(func(e *Entity, s string) { e.Reason = s }),
	"original_id":   stringSetter(func(e *Entity, s string) { e.OriginalID = s }),
	"original_type": stringSetter(func(e *Entity, s string) { e.OriginalType = Type(s) }),
	"due_date":      setDueDate,
}

var protectedColumns = map[string]bool{
	"id":         true,
	"user_id":    true,
	"created_at": true,
	"updated_at": true,
}

func stringSetter(set func(*Entity, string)) func(*Entity, any) error {
	return func(e *Entity, v any) error {
		switch s := v.(type) {
		case string:
			set(e, s)
		case nil:
			set(e, "")
		default:
			return fmt.Errorf("expected string, got %T", v)
		}
		return nil
	}
}

func setDueDate(e *Entity, v any) error {
	switch d := v.(type) {
	case nil:
		e.DueDate = nil
	case time.Time:
		e.DueDate = &d
	case *time.Time:
		if d == nil {
			e.DueDate = nil
			return nil
		}
		t := *d
		e.DueDate = &t
	case string:
		if d == "" {
			e.DueDate = nil
			return nil
		}
		t, err := time.Parse(time.RFC3339, d)
		if err != nil {
			return fmt.Errorf("parsing due_date: %w", err)
		}
		e.DueDate = &t
	default:
		return fmt.Errorf("expected time, got %T", v)
	}
	return nil
}

// Validate checks the patch without applying it.
func (p Patch) Validate() error {
	_, err := (&Entity{}).WithPatch(p)
	return err
}

// WithPatch returns a copy of e with p applied. e is left untouched.
func (e *Entity) WithPatch(p Patch) (*Entity, error) {
	next := e.Clone()
	for col, v := range p {
		if protectedColumns[col] {
			return nil, fmt.Errorf("column %q is not patchable", col)
		}
		if set, ok := patchColumns[col]; ok {
			if err := set(next, v); err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			continue
		}
		if next.Extra == nil {
			next.Extra = make(map[string]any)
		}
		if v == nil {
			delete(next.Extra, col)
		} else {
			next.Extra[col] = v
		}
	}
	return next, nil
}
