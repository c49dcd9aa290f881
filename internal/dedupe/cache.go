// ABOUTME: Thread-safe TTL cache of change fingerprints keyed by row version and contents.
// ABOUTME: Drops redelivered change events and echoes of writes already applied locally.

package dedupe

import (
	"container/list"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/remote"
)

// cacheEntry stores the timestamp and list element for a cached fingerprint.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache remembers recently applied change fingerprints for a bounded time.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // fingerprints in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size.
// A background goroutine periodically drops expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Fingerprint identifies one version of one row change. Two deliveries of
// the same change share a fingerprint. A later change of the same row does
// not, even when the remote left updated_at unchanged, because the row
// contents are part of the key. Events without a row yield "".
func Fingerprint(ev remote.ChangeEvent) string {
	row := ev.Row()
	if row == nil || row.ID == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(ev.Collection))
	b.WriteByte('|')
	b.WriteString(string(ev.Type))
	b.WriteByte('|')
	b.WriteString(row.ID)
	b.WriteByte('|')
	b.WriteString(row.UpdatedAt.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(digest(row), 16))
	return b.String()
}

// digest hashes the row columns a change can touch.
func digest(e *entity.Entity) uint64 {
	d := xxhash.New()
	for _, f := range []string{
		e.UserID, e.Title, e.Description, e.Status, e.Priority,
		e.ProjectID, e.AreaID, e.GoalID,
		e.Reason, e.OriginalID, string(e.OriginalType),
	} {
		_, _ = d.WriteString(f)
		_, _ = d.Write([]byte{0})
	}
	if e.DueDate != nil {
		_, _ = d.WriteString(e.DueDate.UTC().Format(time.RFC3339Nano))
	}
	_, _ = d.Write([]byte{0})
	for _, k := range slices.Sorted(maps.Keys(e.Extra)) {
		_, _ = fmt.Fprintf(d, "%s=%v", k, e.Extra[k])
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// CheckAndMark atomically checks if a fingerprint has been seen and marks it
// if not. Returns true if it was already seen (duplicate). Empty
// fingerprints are never duplicates.
func (c *Cache) CheckAndMark(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if ok && c.now().Sub(entry.timestamp) < c.ttl {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records a fingerprint. If the cache is at capacity, the oldest entry
// is evicted to make room.
func (c *Cache) Mark(key string) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Len returns the number of cached fingerprints, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Reset forgets every fingerprint.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[string]*cacheEntry)
	c.order.Init()
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := c.now()

	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
