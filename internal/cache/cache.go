// Package cache provides the content-addressable artifact cache. Entries are
// keyed by fingerprint and immutable once written: a changed input produces a
// new key, never an in-place mutation. The resident set is bounded by a byte
// budget (strict LRU eviction) and a maximum age (checked lazily on Get).
package cache

import (
	"container/list"
	"sync"
	"time"

	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/fingerprint"
)

// Entry is one cached build result. Deps carries the dependency edges
// declared by the last successful parse so a cache hit can re-register them
// without re-parsing.
type Entry struct {
	Key        fingerprint.Fingerprint
	Artifact   []byte
	Deps       []docid.NodeRef
	Title      string
	Size       int64
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Config bounds the cache.
type Config struct {
	// MaxBytes is the byte budget for resident artifacts. Zero disables
	// size-based eviction.
	MaxBytes int64
	// MaxAge expires entries regardless of use. Zero disables age expiry.
	MaxAge time.Duration
}

// Stats is a point-in-time snapshot of cache bookkeeping.
type Stats struct {
	Entries   int
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is safe for concurrent use by the scheduler's worker set. All
// operations are short, memory-only critical sections; persistence happens
// outside the lock path via Snapshot.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[fingerprint.Fingerprint]*list.Element
	lru     *list.List // front = most recently used

	bytes     int64
	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

func New(cfg Config) *Cache {
	return &Cache{
		cfg:     cfg,
		entries: make(map[fingerprint.Fingerprint]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// Get returns the entry for key, or ok=false on miss. An entry past the
// configured age is treated as a miss and purged.
func (c *Cache) Get(key fingerprint.Fingerprint) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}

	e := el.Value.(*Entry)
	if c.expired(e) {
		c.removeLocked(el)
		c.misses++
		return Entry{}, false
	}

	e.LastUsedAt = c.now()
	c.lru.MoveToFront(el)
	c.hits++
	return *e, true
}

// Put inserts or refreshes the entry for key. Identical inputs always yield
// identical artifacts, so concurrent puts for the same key are idempotent:
// the last writer's artifact stands. If the byte budget is exceeded after
// insertion, entries are evicted in strict LRU order until under budget.
func (c *Cache) Put(key fingerprint.Fingerprint, e Entry) {
	e.Key = key
	if e.Size == 0 {
		e.Size = int64(len(e.Artifact))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastUsedAt = now

	if el, ok := c.entries[key]; ok {
		old := el.Value.(*Entry)
		c.bytes += e.Size - old.Size
		*old = e
		c.lru.MoveToFront(el)
	} else {
		el := c.lru.PushFront(&e)
		c.entries[key] = el
		c.bytes += e.Size
	}

	c.evictOverBudgetLocked()
}

// Invalidate removes the entry for key, used when a document is deleted so
// stale artifacts cannot be served.
func (c *Cache) Invalidate(key fingerprint.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Sweep drops all expired entries eagerly. Serve mode runs this
// periodically so long-idle processes do not hold expired artifacts.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*Entry)) {
			c.removeLocked(el)
			dropped++
		}
		el = prev
	}
	return dropped
}

// Snapshot returns copies of all resident entries, for persistence.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.entries))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*Entry))
	}
	return out
}

// Restore inserts entries loaded from persistent storage, preserving their
// original timestamps so age expiry survives restarts. Expired entries are
// skipped.
func (c *Cache) Restore(entries []Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := 0
	// Oldest-used first so the LRU order ends up matching last use.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if c.expired(&e) {
			continue
		}
		if e.Size == 0 {
			e.Size = int64(len(e.Artifact))
		}
		if _, ok := c.entries[e.Key]; ok {
			continue
		}
		el := c.lru.PushFront(&e)
		c.entries[e.Key] = el
		c.bytes += e.Size
		loaded++
	}
	c.evictOverBudgetLocked()
	return loaded
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// HitRatio returns hits/(hits+misses), or zero before any lookup.
func (c *Cache) HitRatio() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *Cache) expired(e *Entry) bool {
	if c.cfg.MaxAge <= 0 {
		return false
	}
	return c.now().Sub(e.CreatedAt) > c.cfg.MaxAge
}

func (c *Cache) evictOverBudgetLocked() {
	if c.cfg.MaxBytes <= 0 {
		return
	}
	for c.bytes > c.cfg.MaxBytes {
		el := c.lru.Back()
		if el == nil {
			return
		}
		c.removeLocked(el)
		c.evictions++
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*Entry)
	c.lru.Remove(el)
	delete(c.entries, e.Key)
	c.bytes -= e.Size
}
