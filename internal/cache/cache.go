// Package cache — cache.go
//
// Memory-budget LRU cache of per-agent working sets (spec §4.6): an
// access-ordered map from agent id to working-set entry, evicted by
// total byte pressure or entry count, with adaptive eviction fraction
// and a persistence-before-evict contract.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultBudgetBytes is the default total memory budget (500 MiB).
	DefaultBudgetBytes = 500 * 1024 * 1024

	// DefaultMaxEntries is the default maximum resident entry count.
	DefaultMaxEntries = 50

	// DefaultEvictionThreshold is the pressure fraction above which
	// insert begins evicting.
	DefaultEvictionThreshold = 0.8

	// DefaultEvictionFraction is the base fraction of resident entries
	// evicted per pass at pressure == threshold.
	DefaultEvictionFraction = 0.2
)

// Entry is a cached agent working set.
type Entry struct {
	ID               string
	QTableBytes      []byte
	TrajectoryBytes  []byte
	HNSWSliceBytes   []byte
	MemoryUsageBytes uint64
	LastAccessed     time.Time
	AccessCount      uint64
}

// Persister receives evicted entries for durable storage. Persistence
// failures do not block eviction (spec §4.6: "the caller's write has
// precedence; the failed snapshot is reported as a warning metric").
type Persister interface {
	PersistEvicted(e Entry) error
}

// FailureReporter is notified when an evicted entry fails to persist.
// Optional — a Cache constructed with a nil reporter simply drops the
// signal.
type FailureReporter interface {
	ReportPersistFailure(agentID string)
}

// Config holds the cache's capacity parameters.
type Config struct {
	BudgetBytes       uint64
	MaxEntries        int
	EvictionThreshold float32
	EvictionFraction  float32
}

// DefaultConfig returns the reference capacity parameters.
func DefaultConfig() Config {
	return Config{
		BudgetBytes:       DefaultBudgetBytes,
		MaxEntries:        DefaultMaxEntries,
		EvictionThreshold: DefaultEvictionThreshold,
		EvictionFraction:  DefaultEvictionFraction,
	}
}

// Cache is a memory-budget, access-ordered LRU cache of agent working
// sets.
type Cache struct {
	mu sync.Mutex

	cfg       Config
	persister Persister
	reporter  FailureReporter

	order      *list.List               // front = MRU, back = LRU
	byID       map[string]*list.Element // id -> element holding *Entry
	totalBytes uint64
}

// New constructs a Cache. persister and reporter may be nil.
func New(cfg Config, persister Persister, reporter FailureReporter) *Cache {
	return &Cache{
		cfg:       cfg,
		persister: persister,
		reporter:  reporter,
		order:     list.New(),
		byID:      make(map[string]*list.Element),
	}
}

// Get returns the entry for id, promoting it to MRU and bumping its
// access bookkeeping on hit.
func (c *Cache) Get(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	e := el.Value.(*Entry)
	e.LastAccessed = time.Now()
	e.AccessCount++
	return *e, true
}

// Peek returns the entry for id without affecting access order or
// bookkeeping.
func (c *Cache) Peek(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *el.Value.(*Entry), true
}

// Insert adds or replaces the entry for e.ID as MRU, then evicts LRU
// entries while over budget or over the entry-count limit.
func (c *Cache) Insert(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[e.ID]; ok {
		old := existing.Value.(*Entry)
		c.totalBytes -= old.MemoryUsageBytes
		c.order.Remove(existing)
		delete(c.byID, e.ID)
	}

	stamped := e
	if stamped.LastAccessed.IsZero() {
		stamped.LastAccessed = time.Now()
	}
	el := c.order.PushFront(&stamped)
	c.byID[e.ID] = el
	c.totalBytes += e.MemoryUsageBytes

	c.evictLocked()
}

// Remove drops id from the cache without invoking the persister.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byID[id]
	if !ok {
		return
	}
	e := el.Value.(*Entry)
	c.totalBytes -= e.MemoryUsageBytes
	c.order.Remove(el)
	delete(c.byID, id)
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// TotalBytes returns the sum of resident entries' memory usage.
func (c *Cache) TotalBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// MemoryPressure returns total_bytes / budget_bytes.
func (c *Cache) MemoryPressure() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressureLocked()
}

func (c *Cache) pressureLocked() float32 {
	if c.cfg.BudgetBytes == 0 {
		return 0
	}
	return float32(c.totalBytes) / float32(c.cfg.BudgetBytes)
}

// IsUnderPressure reports whether pressure exceeds the eviction
// threshold.
func (c *Cache) IsUnderPressure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressureLocked() > c.cfg.EvictionThreshold
}

// evictionFraction scales linearly from eviction_fraction at
// pressure==threshold to 2*eviction_fraction at pressure==1.0 (spec
// §4.6 "Adaptive eviction"), clamped to that range outside it.
func (c *Cache) evictionFractionLocked() float32 {
	pressure := c.pressureLocked()
	threshold := c.cfg.EvictionThreshold
	base := c.cfg.EvictionFraction

	if threshold >= 1.0 {
		return base
	}
	t := (pressure - threshold) / (1.0 - threshold)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return base + t*base
}

// evictLocked evicts LRU entries while total_bytes exceeds
// budget*threshold or the entry count exceeds max_entries, handing
// each evicted entry to the persister first.
func (c *Cache) evictLocked() {
	budgetLimit := uint64(float64(c.cfg.BudgetBytes) * float64(c.cfg.EvictionThreshold))

	for (c.totalBytes > budgetLimit || c.order.Len() > c.cfg.MaxEntries) && c.order.Len() > 0 {
		fraction := c.evictionFractionLocked()
		batch := int(fraction * float32(c.order.Len()))
		if batch < 1 {
			batch = 1
		}
		for i := 0; i < batch && c.order.Len() > 0; i++ {
			c.evictOneLocked()
			if c.totalBytes <= budgetLimit && c.order.Len() <= c.cfg.MaxEntries {
				break
			}
		}
	}
}

func (c *Cache) evictOneLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	e := back.Value.(*Entry)

	if c.persister != nil {
		if err := c.persister.PersistEvicted(*e); err != nil && c.reporter != nil {
			c.reporter.ReportPersistFailure(e.ID)
		}
	}

	c.totalBytes -= e.MemoryUsageBytes
	c.order.Remove(back)
	delete(c.byID, e.ID)
}
