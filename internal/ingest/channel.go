// ABOUTME: Change ingestion channel with one ordered worker queue per collection
// ABOUTME: Validates, deduplicates and forwards remote change events to a sink

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/2389/para-sync/internal/dedupe"
	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/metrics"
	"github.com/2389/para-sync/internal/remote"
)

// Drop reasons reported to metrics.
const (
	DropUnknownType     = "unknown_type"
	DropMissingRow      = "missing_row"
	DropWrongCollection = "wrong_collection"
	DropDuplicate       = "duplicate"
	DropPanic           = "panic"
)

const (
	defaultQueueSize          = 256
	defaultResubscribeInitial = 250 * time.Millisecond
	defaultResubscribeMax     = 30 * time.Second
)

var (
	// ErrNotOpen is returned by Apply before Open.
	ErrNotOpen = errors.New("ingest channel not open")
	// ErrClosed is returned once the channel has been closed.
	ErrClosed = errors.New("ingest channel closed")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("ingest channel already open")
)

// Sink applies one validated change to local state: collection store,
// relationship indexes and bus. It reports whether anything changed.
type Sink interface {
	ApplyChange(ev remote.ChangeEvent) bool
}

// Options configures a Channel.
type Options struct {
	UserID string
	// Origin tags this client's feeds so the remote can suppress echoes.
	Origin string
	// Collections to follow. Defaults to entity.Collections.
	Collections []entity.Collection
	QueueSize   int

	ResubscribeInitial time.Duration
	ResubscribeMax     time.Duration

	// ReloadOnReconnect calls Reload after a dropped feed is resubscribed.
	ReloadOnReconnect bool
	Reload            func(ctx context.Context) error

	Dedupe  *dedupe.Cache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type item struct {
	ev   remote.ChangeEvent
	done chan bool // nil for remote events
}

type feed struct {
	collection entity.Collection
	queue      chan item
	sub        remote.Subscription // guarded by Channel.mu
	busy       atomic.Bool         // worker is inside handle
}

// Channel owns the change feeds for one user.
type Channel struct {
	store  remote.Store
	sink   Sink
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	feeds  map[entity.Collection]*feed
	opened bool
	closed bool
}

// New creates a Channel. Nothing is subscribed until Open.
func New(store remote.Store, sink Sink, opts Options) *Channel {
	if len(opts.Collections) == 0 {
		opts.Collections = entity.Collections
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.ResubscribeInitial <= 0 {
		opts.ResubscribeInitial = defaultResubscribeInitial
	}
	if opts.ResubscribeMax <= 0 {
		opts.ResubscribeMax = defaultResubscribeMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &Channel{
		store:  store,
		sink:   sink,
		opts:   opts,
		logger: logger.With("component", "ingest", "user_id", opts.UserID),
		feeds:  make(map[entity.Collection]*feed, len(opts.Collections)),
	}
	for _, c := range opts.Collections {
		ch.feeds[c] = &feed{
			collection: c,
			queue:      make(chan item, opts.QueueSize),
		}
	}
	return ch
}

// Open starts the workers and subscribes every collection. The context
// only bounds Open itself; feeds stay open until Close.
//
// A non-nil error lists the feeds that could not be opened. Those keep
// retrying in the background, so the channel is usable either way.
func (ch *Channel) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ErrClosed
	}
	if ch.opened {
		ch.mu.Unlock()
		return ErrAlreadyOpen
	}
	ch.opened = true
	ch.ctx, ch.cancel = context.WithCancel(context.WithoutCancel(ctx))
	ch.mu.Unlock()

	for _, c := range ch.opts.Collections {
		ch.wg.Add(1)
		go ch.work(ch.feeds[c])
	}

	var errs []error
	for _, c := range ch.opts.Collections {
		f := ch.feeds[c]
		if err := ch.subscribe(f); err != nil {
			ch.logger.Warn("change feed failed to open, retrying in background",
				"collection", c,
				"error", err)
			errs = append(errs, fmt.Errorf("subscribe %s: %w", c, err))
			ch.wg.Add(1)
			go func() {
				defer ch.wg.Done()
				ch.reconnect(f)
			}()
		}
	}

	ch.logger.Info("change feeds opened", "collections", len(ch.opts.Collections), "failed", len(errs))
	return errors.Join(errs...)
}

// Close ends every feed and waits for the workers to stop. Queued events
// not yet applied are discarded. Safe to call more than once.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	cancel := ch.cancel
	subs := make([]remote.Subscription, 0, len(ch.feeds))
	for _, f := range ch.feeds {
		if f.sub != nil {
			subs = append(subs, f.sub)
			f.sub = nil
		}
	}
	ch.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ch.wg.Wait()

	ch.logger.Info("change feeds closed")
	return errors.Join(errs...)
}

// Resubscribe replaces the feed for c with a fresh subscription.
func (ch *Channel) Resubscribe(ctx context.Context, c entity.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := ch.openFeed(c)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	old := f.sub
	f.sub = nil
	ch.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if err := ch.subscribe(f); err != nil {
		ch.metrics().Resubscribed(c, false)
		return fmt.Errorf("resubscribe %s: %w", c, err)
	}
	ch.metrics().Resubscribed(c, true)
	ch.logger.Info("change feed resubscribed", "collection", c)
	return nil
}

// Apply queues a locally produced event behind any remote events already
// queued for its collection and waits until it has been handled.
//
// While the collection's worker is handling an event, Apply runs the event
// on the caller's goroutine instead. Bus handlers run on that worker and may
// write back through the gateway; queueing there would wait on itself.
func (ch *Channel) Apply(ctx context.Context, ev remote.ChangeEvent) error {
	f, err := ch.openFeed(ev.Collection)
	if err != nil {
		return err
	}
	if f.busy.Load() {
		ch.handle(f.collection, ev)
		return nil
	}

	done := make(chan bool, 1)
	select {
	case f.queue <- item{ev: ev, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.ctx.Done():
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.ctx.Done():
		return ErrClosed
	}
}

// Subscribed reports whether c currently has an open feed.
func (ch *Channel) Subscribed(c entity.Collection) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	f, ok := ch.feeds[c]
	return ok && f.sub != nil
}

func (ch *Channel) openFeed(c entity.Collection) (*feed, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil, ErrClosed
	}
	if !ch.opened {
		return nil, ErrNotOpen
	}
	f, ok := ch.feeds[c]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return f, nil
}

func (ch *Channel) metrics() *metrics.Metrics {
	return ch.opts.Metrics
}

// subscribe opens a feed for f and starts its disconnect watcher.
func (ch *Channel) subscribe(f *feed) error {
	filter := remote.Filter{
		Collection: f.collection,
		UserID:     ch.opts.UserID,
		Origin:     ch.opts.Origin,
	}
	sub, err := ch.store.Subscribe(ch.ctx, filter, func(ev remote.ChangeEvent) {
		ch.enqueue(f, ev)
	})
	if err != nil {
		return remote.Classify("subscribe", f.collection, err)
	}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		_ = sub.Close()
		return ErrClosed
	}
	prev := f.sub
	f.sub = sub
	ch.wg.Add(1)
	ch.mu.Unlock()

	// A racing reconnect and Resubscribe both land here; last one wins.
	if prev != nil {
		_ = prev.Close()
	}
	ch.metrics().FeedOpened()
	go ch.watch(f, sub)
	return nil
}

// enqueue runs on the remote's delivery goroutine. Blocking here pushes
// back on the remote, which may then drop the feed.
func (ch *Channel) enqueue(f *feed, ev remote.ChangeEvent) {
	select {
	case f.queue <- item{ev: ev}:
	case <-ch.ctx.Done():
	}
}

func (ch *Channel) work(f *feed) {
	defer ch.wg.Done()
	for {
		select {
		case it := <-f.queue:
			f.busy.Store(true)
			applied := ch.handle(f.collection, it.ev)
			f.busy.Store(false)
			if it.done != nil {
				it.done <- applied
			}
		case <-ch.ctx.Done():
			return
		}
	}
}

// handle never fails: bad events are logged, counted and dropped.
func (ch *Channel) handle(c entity.Collection, ev remote.ChangeEvent) (applied bool) {
	if reason := validate(c, ev); reason != "" {
		ch.logger.Warn("dropping change event",
			"collection", c,
			"event_collection", ev.Collection,
			"type", ev.Type,
			"reason", reason)
		ch.metrics().ChangeDropped(c, reason)
		return false
	}

	if ch.opts.Dedupe != nil && ch.opts.Dedupe.CheckAndMark(dedupe.Fingerprint(ev)) {
		ch.logger.Debug("dropping duplicate change",
			"collection", c,
			"type", ev.Type,
			"id", ev.Row().ID)
		ch.metrics().ChangeDropped(c, DropDuplicate)
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			ch.logger.Error("sink panicked applying change",
				"collection", c,
				"type", ev.Type,
				"id", ev.Row().ID,
				"panic", rec)
			ch.metrics().ChangeDropped(c, DropPanic)
			applied = false
		}
	}()

	applied = ch.sink.ApplyChange(ev)
	if applied {
		ch.metrics().ChangeApplied(c, string(ev.Type))
	}
	return applied
}

func validate(c entity.Collection, ev remote.ChangeEvent) string {
	if ev.Collection != c {
		return DropWrongCollection
	}
	if !ev.Type.Valid() {
		return DropUnknownType
	}
	if row := ev.Row(); row == nil || row.ID == "" {
		return DropMissingRow
	}
	return ""
}

// watch waits for sub to end and reconnects if the remote dropped it.
func (ch *Channel) watch(f *feed, sub remote.Subscription) {
	defer ch.wg.Done()
	<-sub.Done()
	ch.metrics().FeedClosed()

	err := sub.Err()
	ch.mu.Lock()
	current := f.sub == sub
	if current && err != nil {
		f.sub = nil
	}
	closed := ch.closed
	ch.mu.Unlock()

	if err == nil || !current || closed {
		return
	}

	ch.logger.Warn("change feed disconnected", "collection", f.collection, "error", err)
	ch.reconnect(f)
}

// reconnect retries subscribe until it succeeds or the channel closes.
func (ch *Channel) reconnect(f *feed) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = ch.opts.ResubscribeInitial
	eb.MaxInterval = ch.opts.ResubscribeMax
	eb.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := ch.subscribe(f)
		if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		ch.metrics().Resubscribed(f.collection, false)
		ch.logger.Warn("resubscribe failed",
			"collection", f.collection,
			"attempt", attempt,
			"retry_in", wait,
			"error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(eb, ch.ctx), notify); err != nil {
		ch.logger.Debug("resubscribe abandoned", "collection", f.collection, "error", err)
		return
	}

	ch.metrics().Resubscribed(f.collection, true)
	ch.logger.Info("change feed resubscribed", "collection", f.collection, "attempts", attempt)

	if ch.opts.ReloadOnReconnect && ch.opts.Reload != nil {
		if err := ch.opts.Reload(ch.ctx); err != nil {
			ch.logger.Error("reload after reconnect failed", "collection", f.collection, "error", err)
		}
	}
}
