package memory

import (
	"context"
	"time"

	"github.com/adeilh/rakh-cache/cache"
)

// Store adapts a Cache of byte slices to cache.Store. Keys are always
// validated with cache.ValidateKey.
type Store struct {
	c *Cache[[]byte]
}

var (
	_ cache.Store         = (*Store)(nil)
	_ cache.Clearer       = (*Store)(nil)
	_ cache.StatsReporter = (*Store)(nil)
	_ cache.TTLGetter     = (*Store)(nil)
)

// NewStore builds a byte-oriented store on top of a new Cache.
func NewStore(opts ...Option) (*Store, error) {
	opts = append(opts, WithKeyValidator(cache.ValidateKey))
	c, err := New[[]byte](opts...)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

// Cache exposes the underlying typed cache.
func (s *Store) Cache() *Cache[[]byte] { return s.c }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	v, err := s.c.Fetch(key)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, 0, err
	}
	v, ttl, err := s.c.FetchWithTTL(key)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), v...), ttl, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return s.c.SetWithTTL(key, append([]byte(nil), value...), ttl)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if !s.c.Delete(key) {
		return cache.ErrNotFound
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.c.Clear()
	return nil
}

func (s *Store) Stats(ctx context.Context) (cache.Stats, error) {
	if err := ctxErr(ctx); err != nil {
		return cache.Stats{}, err
	}
	return s.c.Stats(), nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
