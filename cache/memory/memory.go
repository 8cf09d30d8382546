// Package memory implements a bounded, TTL-expiring in-process cache.
//
// Expiry is lazy: a stale entry stays in memory until a lookup observes it or
// an eviction removes it. Callers that need a hard memory ceiling should size
// MaxSize accordingly.
package memory

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adeilh/rakh-cache/cache"
)

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time // zero for pinned entries
	ttl        time.Duration
}

// Entry is an exported view of a cached value, used for warming and snapshots.
type Entry[V any] struct {
	Key        string
	Value      V
	InsertedAt time.Time
	// TTL overrides the cache TTL for this entry when positive.
	TTL time.Duration
	// Pinned entries carry no insertion time and never expire.
	Pinned bool
}

// Cache is a size-bounded key/value store with per-entry expiration and
// hit/miss accounting. It is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // insertion order, oldest at the front

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	maxSize  int
	ttl      time.Duration
	policy   EvictionPolicy
	obs      Observer
	validKey func(string) error
	now      func() time.Time
}

// New builds an empty cache. It fails with ErrInvalidConfig when MaxSize is
// not positive or TTL is negative.
func New[V any](opts ...Option) (*Cache[V], error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Cache[V]{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		maxSize:  cfg.MaxSize,
		ttl:      cfg.TTL,
		policy:   cfg.Policy,
		obs:      cfg.Observer,
		validKey: cfg.KeyValidator,
		now:      cfg.Now,
	}, nil
}

// Get returns the value stored under key. Expired entries are removed and
// reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, err := c.Fetch(key)
	return v, err == nil
}

// Fetch is Get with the reason for a miss: cache.ErrNotFound, or
// cache.ErrInvalidKey when a key validator rejects key.
func (c *Cache[V]) Fetch(key string) (V, error) {
	v, _, err := c.FetchWithTTL(key)
	return v, err
}

// FetchWithTTL is Fetch that also reports how long the entry has left to
// live. Pinned entries report 0.
func (c *Cache[V]) FetchWithTTL(key string) (V, time.Duration, error) {
	var zero V
	if err := c.checkKey(key); err != nil {
		return zero, 0, err
	}

	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		c.obs.Miss(key)
		return zero, 0, cache.ErrNotFound
	}
	ent := elem.Value.(*entry[V])
	now := c.now()
	if c.fresh(ent, now) {
		c.hits++
		value, remaining := ent.value, c.remaining(ent, now)
		c.mu.Unlock()
		c.obs.Hit(key)
		return value, remaining, nil
	}
	c.remove(elem)
	c.misses++
	c.expirations++
	c.mu.Unlock()

	c.obs.Expire(key)
	c.obs.Miss(key)
	return zero, 0, cache.ErrNotFound
}

// Set stores value under key using the cache TTL.
func (c *Cache[V]) Set(key string, value V) error {
	return c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A positive ttl replaces the cache TTL
// for this entry. When the key is new and the cache is full, one entry is
// evicted first according to the eviction policy. Overwriting refreshes the
// insertion time and never evicts.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) error {
	if err := c.checkKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	now := c.now()
	victim, evicted := c.insert(key, value, now, ttl, now)
	c.mu.Unlock()

	if evicted {
		c.obs.Evict(victim)
	}
	c.obs.Set(key)
	return nil
}

// Warm loads entries as if each were Set in order. An entry's InsertedAt is
// kept when set (zero means now); Pinned entries never expire. All keys are
// checked before anything is inserted.
func (c *Cache[V]) Warm(entries ...Entry[V]) error {
	for _, e := range entries {
		if err := c.checkKey(e.Key); err != nil {
			return fmt.Errorf("memory: warm %q: %w", e.Key, err)
		}
	}

	victims := make([]string, len(entries))
	evicted := make([]bool, len(entries))
	c.mu.Lock()
	for i, e := range entries {
		now := c.now()
		insertedAt := e.InsertedAt
		switch {
		case e.Pinned:
			insertedAt = time.Time{}
		case insertedAt.IsZero():
			insertedAt = now
		}
		victims[i], evicted[i] = c.insert(e.Key, e.Value, insertedAt, e.TTL, now)
	}
	c.mu.Unlock()

	for i, e := range entries {
		if evicted[i] {
			c.obs.Evict(victims[i])
		}
		c.obs.Set(e.Key)
	}
	return nil
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(elem)
	return true
}

// Clear drops every entry and resets all counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	removed := c.order.Len()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.hits, c.misses, c.evictions, c.expirations = 0, 0, 0, 0
	c.mu.Unlock()

	c.obs.Clear(removed)
}

// Stats returns a snapshot of the counters. It does not reset them.
func (c *Cache[V]) Stats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cache.Stats{
		Size:        c.order.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     cache.HitRate(c.hits, c.misses),
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Len reports the number of stored entries, including expired ones that no
// lookup has observed yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys lists stored keys oldest first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*entry[V]).key)
	}
	return keys
}

// Snapshot copies the live entries in insertion order. Expired entries are
// skipped but left in place, and counters are untouched.
func (c *Cache[V]) Snapshot() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]Entry[V], 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*entry[V])
		if !c.fresh(ent, now) {
			continue
		}
		out = append(out, Entry[V]{
			Key:        ent.key,
			Value:      ent.value,
			InsertedAt: ent.insertedAt,
			TTL:        ent.ttl,
			Pinned:     ent.insertedAt.IsZero(),
		})
	}
	return out
}

func (c *Cache[V]) checkKey(key string) error {
	if c.validKey == nil {
		return nil
	}
	err := c.validKey(key)
	if err == nil || errors.Is(err, cache.ErrInvalidKey) {
		return err
	}
	return fmt.Errorf("%w: %v", cache.ErrInvalidKey, err)
}

func (c *Cache[V]) fresh(ent *entry[V], now time.Time) bool {
	if ent.insertedAt.IsZero() {
		return true
	}
	return now.Sub(ent.insertedAt) < c.lifetime(ent)
}

// remaining assumes ent is fresh.
func (c *Cache[V]) remaining(ent *entry[V], now time.Time) time.Duration {
	if ent.insertedAt.IsZero() {
		return 0
	}
	return c.lifetime(ent) - now.Sub(ent.insertedAt)
}

func (c *Cache[V]) lifetime(ent *entry[V]) time.Duration {
	if ent.ttl > 0 {
		return ent.ttl
	}
	return c.ttl
}

// insert must be called with c.mu held.
func (c *Cache[V]) insert(key string, value V, insertedAt time.Time, ttl time.Duration, now time.Time) (string, bool) {
	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.insertedAt = insertedAt
		ent.ttl = ttl
		c.order.MoveToBack(elem)
		return "", false
	}

	var (
		victim  string
		evicted bool
	)
	if c.order.Len() >= c.maxSize {
		if elem := c.victim(now); elem != nil {
			victim = elem.Value.(*entry[V]).key
			c.remove(elem)
			c.evictions++
			evicted = true
		}
	}

	c.entries[key] = c.order.PushBack(&entry[V]{
		key:        key,
		value:      value,
		insertedAt: insertedAt,
		ttl:        ttl,
	})
	return victim, evicted
}

// victim scans in insertion order, so equal timestamps resolve to the
// earliest-written entry.
func (c *Cache[V]) victim(now time.Time) *list.Element {
	var oldest *list.Element
	if c.policy == EvictLegacy {
		cutoff := now
		for e := c.order.Front(); e != nil; e = e.Next() {
			ent := e.Value.(*entry[V])
			if ent.insertedAt.IsZero() {
				continue
			}
			if ent.insertedAt.Before(cutoff) {
				cutoff = ent.insertedAt
				oldest = e
			}
		}
		return oldest
	}

	var oldestAt time.Time
	for e := c.order.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*entry[V])
		if oldest == nil || ent.insertedAt.Before(oldestAt) {
			oldest = e
			oldestAt = ent.insertedAt
		}
	}
	return oldest
}

func (c *Cache[V]) remove(elem *list.Element) {
	ent := c.order.Remove(elem).(*entry[V])
	delete(c.entries, ent.key)
}
