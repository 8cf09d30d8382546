package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adeilh/rakh-cache/cache"
	"github.com/lib/pq"
)

var ErrSchemaMissing = errors.New("postgres: cache table does not exist")

// CacheRepository persists cache entries inside PostgreSQL. Expired rows are
// invisible to Get and removed by PurgeExpired.
type CacheRepository struct {
	db         *sql.DB
	table      string
	defaultTTL time.Duration
	now        func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64

	getQuery, setQuery, deleteQuery, clearQuery, purgeQuery, countQuery string
}

var (
	_ cache.Store         = (*CacheRepository)(nil)
	_ cache.Clearer       = (*CacheRepository)(nil)
	_ cache.StatsReporter = (*CacheRepository)(nil)
	_ cache.TTLGetter     = (*CacheRepository)(nil)
)

type RepositoryOption func(*CacheRepository)

// WithTable overrides the cache table name.
func WithTable(name string) RepositoryOption {
	return func(r *CacheRepository) {
		if name != "" {
			r.table = name
		}
	}
}

// WithDefaultTTL sets the expiry applied when Set is called with ttl <= 0.
// Zero keeps such rows forever.
func WithDefaultTTL(d time.Duration) RepositoryOption {
	return func(r *CacheRepository) {
		if d >= 0 {
			r.defaultTTL = d
		}
	}
}

// WithRepositoryClock overrides the time source used for expiry.
func WithRepositoryClock(now func() time.Time) RepositoryOption {
	return func(r *CacheRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewCacheRepository wraps an existing *sql.DB connection.
func NewCacheRepository(db *sql.DB, opts ...RepositoryOption) *CacheRepository {
	r := &CacheRepository{db: db, table: DefaultCacheTable, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	t := pq.QuoteIdentifier(r.table)
	r.getQuery = `SELECT value, expires_at FROM ` + t + ` WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`
	r.setQuery = `INSERT INTO ` + t + ` (key, value, expires_at, updated_at) VALUES ($1, $2, $3, $4)
                  ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`
	r.deleteQuery = `DELETE FROM ` + t + ` WHERE key = $1`
	r.clearQuery = `DELETE FROM ` + t
	r.purgeQuery = `DELETE FROM ` + t + ` WHERE expires_at IS NOT NULL AND expires_at <= $1`
	r.countQuery = `SELECT count(*) FROM ` + t + ` WHERE expires_at IS NULL OR expires_at > $1`
	return r
}

func (r *CacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	value, _, err := r.GetWithTTL(ctx, key)
	return value, err
}

// GetWithTTL returns the value and the time left until expires_at, or 0 for
// rows that never expire.
func (r *CacheRepository) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, 0, err
	}
	var (
		value     []byte
		expiresAt sql.NullTime
	)
	now := r.now().UTC()
	err := r.db.QueryRowContext(ctx, r.getQuery, key, now).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.misses.Add(1)
			return nil, 0, cache.ErrNotFound
		}
		return nil, 0, translateError(err)
	}
	r.hits.Add(1)
	if !expiresAt.Valid {
		return value, 0, nil
	}
	return value, expiresAt.Time.Sub(now), nil
}

func (r *CacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	now := r.now().UTC()
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, r.setQuery, key, value, expiresAt, now)
	return translateError(err)
}

func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, r.deleteQuery, key)
	if err != nil {
		return translateError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return cache.ErrNotFound
	}
	return nil
}

// Clear deletes every row and resets the lookup counters.
func (r *CacheRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.clearQuery); err != nil {
		return translateError(err)
	}
	r.hits.Store(0)
	r.misses.Store(0)
	return nil
}

// PurgeExpired deletes rows whose expiry has passed and returns how many
// were removed.
func (r *CacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.purgeQuery, r.now().UTC())
	if err != nil {
		return 0, translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: purge: %w", err)
	}
	return n, nil
}

// Stats counts live rows; hits and misses are tracked by this process only.
func (r *CacheRepository) Stats(ctx context.Context) (cache.Stats, error) {
	var size int
	if err := r.db.QueryRowContext(ctx, r.countQuery, r.now().UTC()).Scan(&size); err != nil {
		return cache.Stats{}, translateError(err)
	}
	hits, misses := r.hits.Load(), r.misses.Load()
	return cache.Stats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: cache.HitRate(hits, misses),
	}, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01":
			return fmt.Errorf("%w: %s", ErrSchemaMissing, pqErr.Message)
		}
	}
	return err
}
