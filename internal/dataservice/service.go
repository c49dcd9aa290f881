// ABOUTME: Facade and lifecycle controller for the sync layer
// ABOUTME: Owns the collection store, relationship index and bus for one bound user

package dataservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/para-sync/internal/bus"
	"github.com/2389/para-sync/internal/collection"
	"github.com/2389/para-sync/internal/dedupe"
	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/index"
	"github.com/2389/para-sync/internal/ingest"
	"github.com/2389/para-sync/internal/metrics"
	"github.com/2389/para-sync/internal/mutation"
	"github.com/2389/para-sync/internal/remote"
)

const (
	defaultLoadTimeout = 30 * time.Second
	defaultDedupeTTL   = 5 * time.Minute
	defaultDedupeSize  = 10000
)

var (
	// ErrNotInitialized is returned by operations that need a bound user.
	ErrNotInitialized = errors.New("data service not initialized")
	// ErrNoUser is returned by Initialize for an empty user id.
	ErrNoUser = errors.New("user id is required")
	// ErrSessionChanged is returned when a load finished after the service
	// was re-bound to another user; its result is discarded.
	ErrSessionChanged = errors.New("session changed during load")
)

// Options configures a Service. Zero values select defaults.
type Options struct {
	LoadTimeout     time.Duration
	MutationTimeout time.Duration

	// EchoSuppressed must match the remote: set it when the remote does not
	// deliver this client's own writes on its change feeds.
	EchoSuppressed    bool
	ReloadOnReconnect bool

	QueueSize          int
	ResubscribeInitial time.Duration
	ResubscribeMax     time.Duration

	DedupeTTL  time.Duration
	DedupeSize int

	// Relations overrides index.DefaultRelations.
	Relations []index.Relation
	// Origin identifies this client to the remote. Generated when empty.
	Origin string

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Related is what GetRelatedData returns. Slices are never nil.
type Related struct {
	Projects  []*entity.Entity
	Resources []*entity.Entity
	Tasks     []*entity.Entity
}

// Service is the sync layer facade. Create one with New.
type Service struct {
	remote  remote.Store
	opts    Options
	logger  *slog.Logger
	bus     *bus.Bus
	indexer *index.Indexer

	// lifecycle serializes Initialize and Close.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	store       *collection.Store
	idx         *index.Index
	userID      string
	initialized bool
	generation  uint64
	channel     *ingest.Channel
	gateway     *mutation.Gateway
	dedupe      *dedupe.Cache
}

// New creates an unbound Service over rs.
func New(rs remote.Store, opts Options) *Service {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = defaultDedupeTTL
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = defaultDedupeSize
	}
	if opts.Origin == "" {
		opts.Origin = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger

	return &Service{
		remote:  rs,
		opts:    opts,
		logger:  logger.With("component", "dataservice"),
		bus:     bus.New(logger),
		indexer: index.New(opts.Relations...),
		store:   collection.New(logger),
		idx:     index.Empty(),
	}
}

// Initialize binds the service to userID, loads every collection and
// opens the change feeds. Calling it again for the bound user is a no-op;
// calling it for another user resets all state first.
//
// If the load fails the service stays unbound and empty, and the error is
// returned. The previous user's state is already gone at that point.
// Change feeds that fail to open are retried in the background and do not
// fail Initialize.
func (s *Service) Initialize(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	same := s.initialized && s.userID == userID
	previous := s.userID
	s.mu.RUnlock()
	if same {
		return nil
	}

	s.teardown(previous != "" && previous != userID)

	cache := dedupe.New(s.opts.DedupeTTL, s.opts.DedupeSize)
	s.mu.Lock()
	s.userID = userID
	s.generation++
	gen := s.generation
	s.dedupe = cache
	s.channel = ingest.New(s.remote, sink{s: s, gen: gen}, ingest.Options{
		UserID:             userID,
		Origin:             s.opts.Origin,
		QueueSize:          s.opts.QueueSize,
		ResubscribeInitial: s.opts.ResubscribeInitial,
		ResubscribeMax:     s.opts.ResubscribeMax,
		ReloadOnReconnect:  s.opts.ReloadOnReconnect,
		Reload:             s.LoadAllData,
		Dedupe:             cache,
		Metrics:            s.opts.Metrics,
		Logger:             s.opts.Logger,
	})
	s.gateway = mutation.New(s.remote, sessionBus{s: s, gen: gen}, mutation.Options{
		UserID:         userID,
		Origin:         s.opts.Origin,
		Timeout:        s.opts.MutationTimeout,
		EchoSuppressed: s.opts.EchoSuppressed,
		Applier:        s.channel,
		Metrics:        s.opts.Metrics,
		Logger:         s.opts.Logger,
	})
	s.mu.Unlock()

	s.logger.Info("initializing", "user_id", userID)

	if err := s.LoadAllData(ctx); err != nil {
		s.teardown(false)
		return fmt.Errorf("initialize %s: %w", userID, err)
	}

	s.mu.RLock()
	channel := s.channel
	s.mu.RUnlock()
	if err := channel.Open(ctx); err != nil {
		s.logger.Warn("some change feeds are not open yet", "error", err)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("initialized", "user_id", userID, "entities", s.GetAllData().Len())
	return nil
}

// teardown closes the session and clears local state. With resetBus the
// bus subscriptions are dropped too. Caller holds lifecycle.
func (s *Service) teardown(resetBus bool) {
	s.mu.Lock()
	channel := s.channel
	cache := s.dedupe
	s.channel = nil
	s.gateway = nil
	s.dedupe = nil
	s.initialized = false
	s.userID = ""
	s.generation++
	s.store.Reset()
	s.idx = index.Empty()
	s.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			s.logger.Warn("closing change feeds", "error", err)
		}
	}
	if cache != nil {
		cache.Close()
	}
	if resetBus {
		s.bus.Reset()
	}
}

// Close ends the session: feeds are closed and all state is cleared.
func (s *Service) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.teardown(true)
	s.logger.Info("closed")
	return nil
}

// LoadAllData fetches every collection concurrently and commits them in
// one step: one index rebuild, one Loaded event. On any failure nothing is
// committed and the previous state stays visible.
func (s *Service) LoadAllData(ctx context.Context) error {
	s.mu.RLock()
	userID := s.userID
	gen := s.generation
	s.mu.RUnlock()
	if userID == "" {
		return ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.LoadTimeout)
	defer cancel()

	start := time.Now()
	results := make([][]*entity.Entity, len(entity.Collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range entity.Collections {
		g.Go(func() error {
			rows, err := s.remote.FetchCollection(gctx, c, userID)
			if err != nil {
				return fmt.Errorf("load %s: %w", c, remote.Classify("fetch", c, err))
			}
			results[i] = rows
			return nil
		})
	}
	err := g.Wait()
	s.opts.Metrics.ObserveLoad(err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("load failed", "user_id", userID, "error", err)
		return err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	for i, c := range entity.Collections {
		s.store.Set(c, results[i])
	}
	s.idx = s.indexer.Rebuild(s.store.Snapshot())
	snapshot := s.store.Snapshot()
	s.mu.Unlock()

	s.logger.Info("data loaded",
		"user_id", userID,
		"entities", snapshot.Len(),
		"duration", time.Since(start))
	s.bus.Publish(bus.Loaded{Data: snapshot})
	return nil
}

// sink routes ingested changes into the service for one session. Events
// from a previous session are ignored.
type sink struct {
	s   *Service
	gen uint64
}

func (k sink) ApplyChange(ev remote.ChangeEvent) bool {
	return k.s.applyChange(k.gen, ev)
}

func (s *Service) applyChange(gen uint64, ev remote.ChangeEvent) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	if !s.store.ApplyChange(ev.Collection, ev.Type, ev.Row()) {
		s.mu.Unlock()
		return false
	}
	s.idx = s.indexer.Rebuild(s.store.Snapshot())
	rows := s.store.Get(ev.Collection)
	s.mu.Unlock()

	s.bus.Publish(bus.CollectionChanged{Collection: ev.Collection, Data: rows})
	s.bus.Publish(bus.DataChanged{Collection: ev.Collection, Data: rows})
	return true
}

// sessionBus publishes gateway events for one session. A write that
// completes after the user switched belongs to the old session and is not
// announced to the new one's subscribers.
type sessionBus struct {
	s   *Service
	gen uint64
}

func (p sessionBus) Publish(ev bus.Event) {
	if !p.s.current(p.gen) {
		p.s.logger.Debug("dropping event from previous session", "topic", ev.Topic().String())
		return
	}
	p.s.bus.Publish(ev)
}

func (s *Service) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.generation
}

// UserID returns the bound user, or "".
func (s *Service) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Initialized reports whether a user is bound and loaded.
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// GetAllData returns the current snapshot of every collection.
func (s *Service) GetAllData() entity.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Snapshot()
}

// GetCachedData returns the current contents of one collection. The slice
// and its entities are shared and must not be modified.
func (s *Service) GetCachedData(c entity.Collection) []*entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Get(c)
}

// Find returns one cached entity.
func (s *Service) Find(c entity.Collection, id string) (*entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Find(c, id)
}

// GetRelatedData returns the children of itemID: projects and resources
// of an area, tasks of a project. Other types have no children. The
// returned slices are shared and must not be modified.
func (s *Service) GetRelatedData(itemID string, itemType entity.Type) Related {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()

	r := Related{
		Projects:  []*entity.Entity{},
		Resources: []*entity.Entity{},
		Tasks:     []*entity.Entity{},
	}
	switch itemType {
	case entity.TypeArea:
		r.Projects = idx.Lookup(index.AreaProjects, itemID)
		r.Resources = idx.Lookup(index.AreaResources, itemID)
	case entity.TypeProject:
		r.Tasks = idx.Lookup(index.ProjectTasks, itemID)
	}
	return r
}

// Subscribe registers h for topic and returns the id for Unsubscribe.
func (s *Service) Subscribe(topic bus.Topic, h bus.Handler) string {
	return s.bus.Subscribe(topic, h)
}

// Unsubscribe removes a subscription.
func (s *Service) Unsubscribe(topic bus.Topic, id string) {
	s.bus.Unsubscribe(topic, id)
}

// Resubscribe reopens the change feeds of the given collections, or of
// every collection when none are given. Pair it with LoadAllData to
// recover events missed while disconnected.
func (s *Service) Resubscribe(ctx context.Context, collections ...entity.Collection) error {
	s.mu.RLock()
	channel := s.channel
	ready := s.initialized
	s.mu.RUnlock()
	if !ready || channel == nil {
		return ErrNotInitialized
	}

	if len(collections) == 0 {
		collections = entity.Collections
	}
	var errs []error
	for _, c := range collections {
		if err := channel.Resubscribe(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) session() (*mutation.Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized || s.gateway == nil {
		return nil, ErrNotInitialized
	}
	return s.gateway, nil
}
