// Package tiered layers a bounded in-memory cache in front of a slower
// cache.Store such as Redis, PostgreSQL, or a remote cache node.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/adeilh/rakh-cache/cache"
	"github.com/adeilh/rakh-cache/cache/memory"
)

// Loader produces a value for a key missing from both tiers. The returned
// ttl is passed to both tiers; <= 0 uses their defaults.
type Loader func(ctx context.Context, key string) ([]byte, time.Duration, error)

// DefaultFillTimeout bounds a shared backend read when WithFillTimeout is not
// given.
const DefaultFillTimeout = 5 * time.Second

const genStripes = 256

// Cache serves reads from memory first, then the backing store, then the
// optional loader. Concurrent misses for the same key share one backend read.
//
// Every Set, Delete, and Clear bumps a per-key generation before touching
// the front tier. A backend read only fills the front when the generation it
// started with is still current, so a write that lands while the read is in
// flight is never shadowed by the older value.
type Cache struct {
	front       *memory.Cache[[]byte]
	back        cache.Store
	loader      Loader
	log         *zap.Logger
	group       singleflight.Group
	frontTTL    time.Duration
	fillTimeout time.Duration

	mu   sync.Mutex // guards gens and orders front writes against them
	gens [genStripes]uint64
}

var (
	_ cache.Store         = (*Cache)(nil)
	_ cache.Clearer       = (*Cache)(nil)
	_ cache.StatsReporter = (*Cache)(nil)
)

type Option func(*Cache)

// WithLoader installs a read-through loader.
func WithLoader(l Loader) Option {
	return func(c *Cache) { c.loader = l }
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFrontTTL caps how long the memory tier keeps an entry. Values copied
// from the backend keep their remaining lifetime when the backend reports it
// (cache.TTLGetter), but never stay in memory longer than d.
func WithFrontTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.frontTTL = d
		}
	}
}

// WithFillTimeout bounds a shared backend read and load. The read runs
// detached from the caller that started it, so one caller giving up does not
// fail the others waiting on the same key.
func WithFillTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fillTimeout = d
		}
	}
}

// New combines front and back. Both are required.
func New(front *memory.Cache[[]byte], back cache.Store, opts ...Option) (*Cache, error) {
	if front == nil || back == nil {
		return nil, errors.New("tiered: front and back stores are required")
	}
	c := &Cache{front: front, back: back, log: zap.NewNop(), fillTimeout: DefaultFillTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Get returns as soon as ctx is done, even while a shared backend read for
// key is still running on behalf of other callers.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}
	if v, ok := c.front.Get(key); ok {
		return clone(v), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fillTimeout)
		defer cancel()
		return c.fill(fillCtx, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug("tiered: shared backend read", zap.String("key", key))
		}
		return clone(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) fill(ctx context.Context, key string) ([]byte, error) {
	stripe := stripeOf(key)
	gen := c.generation(stripe)

	v, ttl, err := c.readBack(ctx, key)
	if err == nil {
		c.fillFront(stripe, gen, key, clone(v), ttl)
		return v, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		c.log.Warn("tiered: backend read failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("tiered: get %q: %w", key, err)
	}
	if c.loader == nil {
		return nil, cache.ErrNotFound
	}

	v, ttl, err = c.loader(ctx, key)
	if err != nil {
		return nil, err
	}
	if c.generation(stripe) != gen {
		// a write raced the load; keep it
		return v, nil
	}
	if err := c.back.Set(ctx, key, v, ttl); err != nil {
		c.log.Warn("tiered: backend write after load failed", zap.String("key", key), zap.Error(err))
	}
	c.fillFront(stripe, gen, key, clone(v), ttl)
	return v, nil
}

// readBack reports a zero ttl when the backend cannot tell how long the value
// has left.
func (c *Cache) readBack(ctx context.Context, key string) ([]byte, time.Duration, error) {
	if tg, ok := c.back.(cache.TTLGetter); ok {
		return tg.GetWithTTL(ctx, key)
	}
	v, err := c.back.Get(ctx, key)
	return v, 0, err
}

func (c *Cache) fillFront(stripe int, gen uint64, key string, v []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[stripe] != gen {
		c.log.Debug("tiered: dropped stale fill", zap.String("key", key))
		return
	}
	_ = c.front.SetWithTTL(key, v, c.capTTL(ttl))
}

// Set writes the backing store first so a failed write never leaves a value
// visible only in memory.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	err := c.back.Set(ctx, key, value, ttl)

	stripe := stripeOf(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[stripe]++
	if err != nil {
		c.front.Delete(key)
		return fmt.Errorf("tiered: set %q: %w", key, err)
	}
	return c.front.SetWithTTL(key, clone(value), c.capTTL(ttl))
}

// Delete removes key from both tiers. It returns cache.ErrNotFound only when
// neither tier held the key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	err := c.back.Delete(ctx, key)

	stripe := stripeOf(key)
	c.mu.Lock()
	c.gens[stripe]++
	inFront := c.front.Delete(key)
	c.mu.Unlock()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, cache.ErrNotFound):
		if inFront {
			return nil
		}
		return cache.ErrNotFound
	default:
		return fmt.Errorf("tiered: delete %q: %w", key, err)
	}
}

// Clear empties memory and, when supported, the backing store.
func (c *Cache) Clear(ctx context.Context) error {
	var err error
	if cl, ok := c.back.(cache.Clearer); ok {
		err = cl.Clear(ctx)
	}

	c.mu.Lock()
	for i := range c.gens {
		c.gens[i]++
	}
	c.front.Clear()
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("tiered: clear: %w", err)
	}
	return nil
}

// Stats reports the memory tier.
func (c *Cache) Stats(context.Context) (cache.Stats, error) {
	return c.front.Stats(), nil
}

func (c *Cache) generation(stripe int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[stripe]
}

// capTTL maps a backend ttl (0 = unknown or no expiry) to the front tier's.
func (c *Cache) capTTL(ttl time.Duration) time.Duration {
	if c.frontTTL > 0 && (ttl <= 0 || ttl > c.frontTTL) {
		return c.frontTTL
	}
	return ttl
}

func stripeOf(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % genStripes)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
