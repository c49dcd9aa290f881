// ABOUTME: Mutation gateway executing user-initiated writes against the remote store
// ABOUTME: Stamps ownership, bounds each call with a deadline and publishes lifecycle events

package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/para-sync/internal/bus"
	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/metrics"
	"github.com/2389/para-sync/internal/remote"
)

const defaultTimeout = 15 * time.Second

// Applier applies a locally produced change event in order with remote
// events for the same collection.
type Applier interface {
	Apply(ctx context.Context, ev remote.ChangeEvent) error
}

// Publisher is the subset of the bus the gateway needs.
type Publisher interface {
	Publish(ev bus.Event)
}

// Options configures a Gateway.
type Options struct {
	UserID string
	Origin string
	// Timeout bounds every remote call. Zero uses the default.
	Timeout time.Duration
	// EchoSuppressed means the remote will not deliver this client's own
	// writes back on its change feeds, so the gateway applies them itself
	// through Applier.
	EchoSuppressed bool
	Applier        Applier

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Gateway performs writes for one bound user. The collection store is
// normally updated by the echo on the change feed, not here.
type Gateway struct {
	store  remote.Store
	pub    Publisher
	opts   Options
	logger *slog.Logger
}

// New creates a Gateway.
func New(store remote.Store, pub Publisher, opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:  store,
		pub:    pub,
		opts:   opts,
		logger: logger.With("component", "mutation", "user_id", opts.UserID),
	}
}

// Create inserts e into c on behalf of the bound user and publishes
// Created with the persisted row. A missing id is generated here.
func (g *Gateway) Create(ctx context.Context, c entity.Collection, e *entity.Entity) (*entity.Entity, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("create in %q: %w", c, ErrUnknownType)
	}
	if e == nil {
		return nil, &remote.RejectedMutationError{Op: remote.OpInsert, Collection: c, Reason: "missing row"}
	}
	row := e.Clone()
	row.UserID = g.opts.UserID
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	created, err := g.mutate(ctx, remote.Mutation{
		Collection: c,
		Op:         remote.OpInsert,
		Row:        row,
	})
	if err != nil {
		return nil, err
	}

	g.fallback(ctx, remote.ChangeEvent{Collection: c, Type: remote.ChangeInsert, New: created})
	g.pub.Publish(bus.Created{Type: c.Type(), Entity: created})
	return created, nil
}

// Update patches the bound user's row id in c and publishes Updated.
func (g *Gateway) Update(ctx context.Context, c entity.Collection, id string, patch entity.Patch) (*entity.Entity, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("update in %q: %w", c, ErrUnknownType)
	}
	if id == "" {
		return nil, fmt.Errorf("update %s: %w", c.Type(), ErrMissingID)
	}
	if err := patch.Validate(); err != nil {
		return nil, &remote.RejectedMutationError{Op: remote.OpUpdate, Collection: c, Reason: err.Error(), Err: err}
	}

	updated, err := g.mutate(ctx, remote.Mutation{
		Collection: c,
		Op:         remote.OpUpdate,
		ID:         id,
		Patch:      patch,
	})
	if err != nil {
		return nil, err
	}

	g.fallback(ctx, remote.ChangeEvent{Collection: c, Type: remote.ChangeUpdate, New: updated})
	g.pub.Publish(bus.Updated{Type: c.Type(), Entity: updated})
	return updated, nil
}

// Delete removes the bound user's row id from c and publishes Deleted.
func (g *Gateway) Delete(ctx context.Context, c entity.Collection, id string) error {
	if !c.Valid() {
		return fmt.Errorf("delete in %q: %w", c, ErrUnknownType)
	}
	if id == "" {
		return fmt.Errorf("delete %s: %w", c.Type(), ErrMissingID)
	}

	removed, err := g.mutate(ctx, remote.Mutation{
		Collection: c,
		Op:         remote.OpDelete,
		ID:         id,
	})
	if err != nil {
		return err
	}

	if removed == nil {
		removed = &entity.Entity{ID: id, UserID: g.opts.UserID}
	}
	g.fallback(ctx, remote.ChangeEvent{Collection: c, Type: remote.ChangeDelete, Old: removed})
	g.pub.Publish(bus.Deleted{Type: c.Type(), ID: id})
	return nil
}

// get reads one row of the bound user under the gateway deadline.
func (g *Gateway) get(ctx context.Context, c entity.Collection, id string) (*entity.Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	e, err := g.store.Get(ctx, c, g.opts.UserID, id)
	if err != nil {
		return nil, remote.Classify("get", c, err)
	}
	return e, nil
}

func (g *Gateway) mutate(ctx context.Context, m remote.Mutation) (*entity.Entity, error) {
	m.UserID = g.opts.UserID
	m.Origin = g.opts.Origin

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	row, err := g.store.Mutate(callCtx, m)
	err = remote.Classify(string(m.Op), m.Collection, err)
	g.opts.Metrics.ObserveMutation(m.Collection, string(m.Op), result(err), time.Since(start))

	if err != nil {
		g.logger.Warn("mutation failed",
			"collection", m.Collection,
			"op", m.Op,
			"id", m.ID,
			"error", err)
		return nil, err
	}

	g.logger.Debug("mutation applied",
		"collection", m.Collection,
		"op", m.Op,
		"id", m.ID,
		"duration", time.Since(start))
	return row, nil
}

// fallback applies the persisted row locally when no echo will come. The
// write already succeeded remotely, so a local failure is only logged.
func (g *Gateway) fallback(ctx context.Context, ev remote.ChangeEvent) {
	if !g.opts.EchoSuppressed || g.opts.Applier == nil {
		return
	}
	if err := g.opts.Applier.Apply(ctx, ev); err != nil {
		g.logger.Warn("local apply of own write failed",
			"collection", ev.Collection,
			"type", ev.Type,
			"id", ev.Row().ID,
			"error", err)
	}
}

func result(err error) string {
	var te *remote.TransportError
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.As(err, &te) && te.Timeout:
		return metrics.ResultTimeout
	case remote.IsRejected(err):
		return metrics.ResultRejected
	}
	return metrics.ResultError
}
