// ABOUTME: Tests for the SQLite remote store
// ABOUTME: Covers user scoping, ordering, patch updates, typed errors and the change feed

package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/remote"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_InsertFetchNewestFirst(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := t.Context()

	first, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1",
		Row: &entity.Entity{Title: "first", Priority: "high"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "u1", first.UserID)
	assert.False(t, first.CreatedAt.IsZero())

	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	second, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1",
		Row: &entity.Entity{Title: "second", ProjectID: "p1", DueDate: &due, Extra: map[string]any{"estimate": 3}},
	})
	require.NoError(t, err)

	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u2",
		Row: &entity.Entity{Title: "someone else"},
	})
	require.NoError(t, err)

	rows, err := s.FetchCollection(ctx, entity.Tasks, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, first.ID, rows[1].ID)
	assert.Equal(t, "p1", rows[0].ProjectID)
	require.NotNil(t, rows[0].DueDate)
	assert.True(t, due.Equal(*rows[0].DueDate))
	assert.EqualValues(t, 3, rows[0].Extra["estimate"])

	empty, err := s.FetchCollection(ctx, entity.Habits, "u1")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_UpdateAndDeleteAreUserScoped(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := t.Context()

	row, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Projects, Op: remote.OpInsert, UserID: "u1",
		Row: &entity.Entity{Title: "Launch"},
	})
	require.NoError(t, err)

	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Projects, Op: remote.OpUpdate, UserID: "intruder", ID: row.ID,
		Patch: entity.Patch{"title": "pwned"},
	})
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Projects, Op: remote.OpDelete, UserID: "intruder", ID: row.ID,
	})
	assert.ErrorIs(t, err, remote.ErrNotFound)

	updated, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Projects, Op: remote.OpUpdate, UserID: "u1", ID: row.ID,
		Patch: entity.Patch{"status": "active", "area_id": "a1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Launch", updated.Title)
	assert.Equal(t, "active", updated.Status)
	assert.Equal(t, "a1", updated.AreaID)
	assert.False(t, updated.UpdatedAt.Before(row.UpdatedAt))

	got, err := s.Get(ctx, entity.Projects, "u1", row.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)

	deleted, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Projects, Op: remote.OpDelete, UserID: "u1", ID: row.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, row.ID, deleted.ID)

	_, err = s.Get(ctx, entity.Projects, "u1", row.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestSQLiteStore_RejectsInvalidWrites(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := t.Context()

	_, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1",
		Row: &entity.Entity{Title: ""},
	})
	var rejected *remote.RejectedMutationError
	require.ErrorAs(t, err, &rejected)

	row, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1",
		Row: &entity.Entity{ID: "fixed", Title: "a"},
	})
	require.NoError(t, err)

	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1",
		Row: &entity.Entity{ID: row.ID, Title: "dup"},
	})
	require.ErrorAs(t, err, &rejected)

	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpUpdate, UserID: "u1", ID: row.ID,
		Patch: entity.Patch{"user_id": "u2"},
	})
	require.ErrorAs(t, err, &rejected)

	_, err = s.Mutate(ctx, remote.Mutation{Collection: "widgets", Op: remote.OpInsert, UserID: "u1"})
	require.ErrorAs(t, err, &rejected)

	_, err = s.Mutate(ctx, remote.Mutation{Collection: entity.Tasks, Op: remote.OpInsert})
	require.ErrorAs(t, err, &rejected)
}

func TestSQLiteStore_ChangeFeed(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := t.Context()

	var rec recorder
	sub, err := s.Subscribe(ctx, remote.Filter{Collection: entity.Tasks, UserID: "u1", Origin: "client-a"}, rec.handle)
	require.NoError(t, err)
	defer sub.Close()

	row, err := s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1", Origin: "client-a",
		Row: &entity.Entity{Title: "t"},
	})
	require.NoError(t, err)
	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpUpdate, UserID: "u1", ID: row.ID,
		Patch: entity.Patch{"status": "done"},
	})
	require.NoError(t, err)
	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpDelete, UserID: "u1", ID: row.ID,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.len() == 3 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, remote.ChangeInsert, rec.events[0].Type)
	assert.Equal(t, remote.ChangeUpdate, rec.events[1].Type)
	assert.Equal(t, "done", rec.events[1].New.Status)
	assert.Equal(t, remote.ChangeDelete, rec.events[2].Type)
	assert.Equal(t, row.ID, rec.events[2].Old.ID)
	rec.mu.Unlock()

	// Own writes disappear from the feed once echo suppression is on
	s.SetSuppressEcho(true)
	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1", Origin: "client-a",
		Row: &entity.Entity{Title: "quiet"},
	})
	require.NoError(t, err)
	_, err = s.Mutate(ctx, remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1", Origin: "client-b",
		Row: &entity.Entity{Title: "loud"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.len() == 4 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "loud", rec.events[3].New.Title)
	rec.mu.Unlock()
}

func TestSQLiteStore_MemoryPath(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Mutate(t.Context(), remote.Mutation{
		Collection: entity.Areas, Op: remote.OpInsert, UserID: "u1",
		Row: &entity.Entity{Title: "Health"},
	})
	require.NoError(t, err)

	rows, err := s.FetchCollection(t.Context(), entity.Areas, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = s.FetchCollection(t.Context(), "widgets", "u1")
	assert.True(t, err != nil && !errors.Is(err, remote.ErrNotFound))
}
