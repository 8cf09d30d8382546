package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("cache: key not found")
	ErrInvalidKey = errors.New("cache: invalid key")
)

// Store represents a simple TTL-based cache abstraction that can be backed
// by memory, Redis, PostgreSQL, or a remote cache node. A ttl <= 0 leaves
// expiry to the backend's default.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Clearer is implemented by stores that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// StatsReporter is implemented by stores that track lookup statistics.
type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}

// TTLGetter is implemented by stores that can report how long an entry has
// left to live. A zero duration means the entry does not expire.
type TTLGetter interface {
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error)
}

// Stats is a point-in-time view of a cache's counters.
type Stats struct {
	Size        int     `json:"size"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hitRate"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
}

// HitRate returns hits as a percentage of all lookups, or 0 when there were none.
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
