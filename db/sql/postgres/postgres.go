// Package postgres provides a PostgreSQL-backed cache.Store built on lib/pq.
package postgres

import (
	"context"
	"database/sql"
)

// Connect opens a PostgreSQL connection using the provided options.
func Connect(ctx context.Context, opts ...Option) (*sql.DB, error) {
	return Open(ctx, opts...)
}

// Migrate creates the cache table named table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB, table string) error {
	if table == "" {
		table = DefaultCacheTable
	}
	return ApplyMigrations(ctx, db, CacheTableSchema(table)...)
}
