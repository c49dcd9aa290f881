// ABOUTME: Tests for MockStore behaviour relied on by higher-level tests
// ABOUTME: Covers failure injection, latency timeouts, scoping and feed delivery

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/remote"
)

func TestMockStore_SeedAndFetch(t *testing.T) {
	m := NewMockStore()
	m.Seed(entity.Tasks, "u1", &entity.Entity{ID: "t2", Title: "b"}, &entity.Entity{ID: "t1", Title: "a"})

	rows, err := m.FetchCollection(t.Context(), entity.Tasks, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "t2", rows[0].ID)
	assert.Equal(t, "u1", rows[0].UserID)

	other, err := m.FetchCollection(t.Context(), entity.Tasks, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
	assert.Equal(t, 2, m.Calls(MockOpFetch))
}

func TestMockStore_FailNext(t *testing.T) {
	m := NewMockStore()
	boom := errors.New("boom")
	m.FailNext(MockOpInsert, entity.Archives, boom)

	// Different collection is not affected
	_, err := m.Mutate(t.Context(), remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1", Row: &entity.Entity{Title: "x"},
	})
	require.NoError(t, err)

	_, err = m.Mutate(t.Context(), remote.Mutation{
		Collection: entity.Archives, Op: remote.OpInsert, UserID: "u1", Row: &entity.Entity{Title: "x"},
	})
	assert.ErrorIs(t, err, boom)

	// Consumed after one use
	_, err = m.Mutate(t.Context(), remote.Mutation{
		Collection: entity.Archives, Op: remote.OpInsert, UserID: "u1", Row: &entity.Entity{Title: "x"},
	})
	assert.NoError(t, err)
}

func TestMockStore_DelayHonoursContext(t *testing.T) {
	m := NewMockStore()
	m.SetDelay(MockOpFetch, time.Second)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	_, err := m.FetchCollection(ctx, entity.Tasks, "u1")
	var te *remote.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout)
}

func TestMockStore_MutationsPublish(t *testing.T) {
	m := NewMockStore()
	var rec recorder
	_, err := m.Subscribe(t.Context(), remote.Filter{Collection: entity.Tasks, UserID: "u1"}, rec.handle)
	require.NoError(t, err)

	row, err := m.Mutate(t.Context(), remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpInsert, UserID: "u1", Row: &entity.Entity{Title: "x"},
	})
	require.NoError(t, err)
	_, err = m.Mutate(t.Context(), remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpUpdate, UserID: "u2", ID: row.ID, Patch: entity.Patch{"title": "y"},
	})
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = m.Mutate(t.Context(), remote.Mutation{
		Collection: entity.Tasks, Op: remote.OpDelete, UserID: "u1", ID: row.ID,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{row.ID, row.ID}, rec.ids())

	_, err = m.Get(t.Context(), entity.Tasks, "u1", row.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}
