// ABOUTME: Tests for the mutation gateway and the archive composite operation
// ABOUTME: Uses the mock remote store for failure injection and latency

package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/para-sync/internal/bus"
	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/metrics"
	"github.com/2389/para-sync/internal/remote"
	"github.com/2389/para-sync/internal/store"
)

const testUser = "user-1"

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *recordingPublisher) Publish(ev bus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Topic().String()
	}
	return out
}

type recordingApplier struct {
	mu     sync.Mutex
	events []remote.ChangeEvent
}

func (a *recordingApplier) Apply(_ context.Context, ev remote.ChangeEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func newTestGateway(t *testing.T, opts Options) (*Gateway, *store.MockStore, *recordingPublisher) {
	t.Helper()
	ms := store.NewMockStore()
	pub := &recordingPublisher{}
	opts.UserID = testUser
	opts.Origin = "client-1"
	return New(ms, pub, opts), ms, pub
}

func TestCreate_StampsOwnerAndPublishes(t *testing.T) {
	g, ms, pub := newTestGateway(t, Options{})

	created, err := g.Create(t.Context(), entity.Tasks, &entity.Entity{Title: "ship it", UserID: "spoofed"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testUser, created.UserID)

	stored, err := ms.Get(t.Context(), entity.Tasks, testUser, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ship it", stored.Title)

	assert.Equal(t, []string{"taskCreated"}, pub.topics())
	ev, ok := pub.events[0].(bus.Created)
	require.True(t, ok)
	assert.Equal(t, entity.TypeTask, ev.Type)
	assert.Equal(t, created.ID, ev.Entity.ID)
}

func TestCreate_Rejected(t *testing.T) {
	g, _, pub := newTestGateway(t, Options{})

	_, err := g.Create(t.Context(), entity.Projects, &entity.Entity{})
	require.Error(t, err)
	assert.True(t, remote.IsRejected(err))

	_, err = g.Create(t.Context(), entity.Projects, nil)
	assert.True(t, remote.IsRejected(err))

	_, err = g.Create(t.Context(), entity.Collection("notes"), &entity.Entity{Title: "x"})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Empty(t, pub.topics(), "failures publish nothing")
}

func TestCreate_TransportFailure(t *testing.T) {
	g, ms, pub := newTestGateway(t, Options{})
	ms.FailNext(store.MockOpInsert, entity.Goals, errors.New("connection reset"))

	_, err := g.Create(t.Context(), entity.Goals, &entity.Entity{Title: "run"})
	require.Error(t, err)
	var te *remote.TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Timeout)
	assert.Empty(t, pub.topics())
}

func TestMutation_Timeout(t *testing.T) {
	g, ms, _ := newTestGateway(t, Options{Timeout: 20 * time.Millisecond})
	ms.SetDelay(store.MockOpInsert, time.Second)

	_, err := g.Create(t.Context(), entity.Habits, &entity.Entity{Title: "stretch"})
	require.Error(t, err)
	var te *remote.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout)
	assert.Equal(t, metrics.ResultTimeout, result(err))
}

func TestUpdate(t *testing.T) {
	g, ms, pub := newTestGateway(t, Options{})
	ms.Seed(entity.Tasks, testUser, &entity.Entity{ID: "t1", Title: "old"})

	updated, err := g.Update(t.Context(), entity.Tasks, "t1", entity.Patch{"title": "new", "status": "done"})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "done", updated.Status)
	assert.Equal(t, []string{"taskUpdated"}, pub.topics())
}

func TestUpdate_ScopedToUser(t *testing.T) {
	g, ms, _ := newTestGateway(t, Options{})
	ms.Seed(entity.Tasks, "someone-else", &entity.Entity{ID: "t1", Title: "theirs"})

	_, err := g.Update(t.Context(), entity.Tasks, "t1", entity.Patch{"title": "mine now"})
	require.ErrorIs(t, err, remote.ErrNotFound)

	theirs, err := ms.Get(t.Context(), entity.Tasks, "someone-else", "t1")
	require.NoError(t, err)
	assert.Equal(t, "theirs", theirs.Title)
}

func TestUpdate_InvalidPatchNeverReachesRemote(t *testing.T) {
	g, ms, _ := newTestGateway(t, Options{})

	_, err := g.Update(t.Context(), entity.Tasks, "t1", entity.Patch{"user_id": "someone-else"})
	require.Error(t, err)
	assert.True(t, remote.IsRejected(err))
	assert.Equal(t, 0, ms.Calls(store.MockOpUpdate))

	_, err = g.Update(t.Context(), entity.Tasks, "", entity.Patch{"title": "x"})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestDelete(t *testing.T) {
	g, ms, pub := newTestGateway(t, Options{})
	ms.Seed(entity.Resources, testUser, &entity.Entity{ID: "r1", Title: "doc"})

	require.NoError(t, g.Delete(t.Context(), entity.Resources, "r1"))
	_, err := ms.Get(t.Context(), entity.Resources, testUser, "r1")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	require.Len(t, pub.events, 1)
	assert.Equal(t, bus.Deleted{Type: entity.TypeResource, ID: "r1"}, pub.events[0])

	assert.ErrorIs(t, g.Delete(t.Context(), entity.Resources, "r1"), remote.ErrNotFound)
}

func TestEchoSuppressedFallback(t *testing.T) {
	applier := &recordingApplier{}
	g, ms, _ := newTestGateway(t, Options{EchoSuppressed: true, Applier: applier})

	created, err := g.Create(t.Context(), entity.Areas, &entity.Entity{Title: "health"})
	require.NoError(t, err)
	_, err = g.Update(t.Context(), entity.Areas, created.ID, entity.Patch{"title": "fitness"})
	require.NoError(t, err)
	require.NoError(t, g.Delete(t.Context(), entity.Areas, created.ID))

	require.Len(t, applier.events, 3)
	assert.Equal(t, remote.ChangeInsert, applier.events[0].Type)
	assert.Equal(t, remote.ChangeUpdate, applier.events[1].Type)
	assert.Equal(t, "fitness", applier.events[1].New.Title)
	assert.Equal(t, remote.ChangeDelete, applier.events[2].Type)
	assert.Equal(t, created.ID, applier.events[2].Old.ID)
	assert.Equal(t, 3, ms.Calls(store.MockOpInsert)+ms.Calls(store.MockOpUpdate)+ms.Calls(store.MockOpDelete))
}

func TestEchoDeliveredSkipsFallback(t *testing.T) {
	applier := &recordingApplier{}
	g, _, _ := newTestGateway(t, Options{Applier: applier})

	_, err := g.Create(t.Context(), entity.Areas, &entity.Entity{Title: "health"})
	require.NoError(t, err)
	assert.Empty(t, applier.events)
}

func TestArchiveItem(t *testing.T) {
	g, ms, pub := newTestGateway(t, Options{})
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ms.Seed(entity.Projects, testUser, &entity.Entity{
		ID:          "p1",
		Title:       "Launch",
		Description: "v1",
		Status:      "active",
		AreaID:      "a1",
		DueDate:     &due,
		Extra:       map[string]any{"color": "blue"},
	})

	record, err := g.ArchiveItem(t.Context(), "p1", entity.TypeProject, "done")
	require.NoError(t, err)
	assert.Equal(t, "Launch", record.Title)
	assert.Equal(t, "v1", record.Description)
	assert.Equal(t, "done", record.Reason)
	assert.Equal(t, "p1", record.OriginalID)
	assert.Equal(t, entity.TypeProject, record.OriginalType)
	assert.Equal(t, "blue", record.Extra["color"])
	assert.Equal(t, "active", record.Extra["status"])
	assert.Equal(t, "a1", record.Extra["area_id"])
	assert.Equal(t, "2026-03-01T00:00:00Z", record.Extra["due_date"])

	_, err = ms.Get(t.Context(), entity.Projects, testUser, "p1")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = ms.Get(t.Context(), entity.Archives, testUser, record.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"archiveCreated", "projectDeleted"}, pub.topics())
}

func TestArchiveItem_ArchiveWriteFailureKeepsOriginal(t *testing.T) {
	g, ms, pub := newTestGateway(t, Options{})
	ms.Seed(entity.Tasks, testUser, &entity.Entity{ID: "t1", Title: "keep me"})
	ms.FailNext(store.MockOpInsert, entity.Archives, &remote.RejectedMutationError{
		Op: remote.OpInsert, Collection: entity.Archives, Reason: "quota exceeded",
	})

	record, err := g.ArchiveItem(t.Context(), "t1", entity.TypeTask, "stale")
	require.Error(t, err)
	assert.Nil(t, record)
	assert.True(t, remote.IsRejected(err))
	assert.False(t, IsPartialArchive(err), "a clean failure is not partial")

	live, err := ms.Get(t.Context(), entity.Tasks, testUser, "t1")
	require.NoError(t, err)
	assert.Equal(t, "keep me", live.Title)
	assert.Equal(t, 0, ms.Calls(store.MockOpDelete))
	assert.Empty(t, pub.topics())
}

func TestArchiveItem_DeleteFailureIsPartial(t *testing.T) {
	g, ms, _ := newTestGateway(t, Options{})
	ms.Seed(entity.Goals, testUser, &entity.Entity{ID: "g1", Title: "marathon"})
	ms.FailNext(store.MockOpDelete, entity.Goals, errors.New("connection dropped"))

	record, err := g.ArchiveItem(t.Context(), "g1", entity.TypeGoal, "abandoned")
	require.Error(t, err)
	require.NotNil(t, record)

	var pe *PartialArchiveError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, record.ID, pe.ArchiveID)
	assert.Equal(t, "g1", pe.OriginalID)
	assert.Equal(t, entity.TypeGoal, pe.Type)
	assert.True(t, remote.IsTransport(err))

	_, err = ms.Get(t.Context(), entity.Goals, testUser, "g1")
	require.NoError(t, err, "original survives")
	_, err = ms.Get(t.Context(), entity.Archives, testUser, record.ID)
	require.NoError(t, err, "archive record exists")
}

func TestArchiveItem_Invalid(t *testing.T) {
	g, _, _ := newTestGateway(t, Options{})

	_, err := g.ArchiveItem(t.Context(), "missing", entity.TypeTask, "")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = g.ArchiveItem(t.Context(), "x", entity.TypeArchive, "")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = g.ArchiveItem(t.Context(), "x", entity.Type("note"), "")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = g.ArchiveItem(t.Context(), "", entity.TypeTask, "")
	assert.ErrorIs(t, err, ErrMissingID)
}
