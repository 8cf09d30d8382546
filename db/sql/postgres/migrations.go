package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// DefaultCacheTable is the table used when no name is configured.
const DefaultCacheTable = "cache_entries"

// CacheTableSchema returns the DDL that creates the cache table and its
// expiry index.
func CacheTableSchema(table string) []string {
	name := pq.QuoteIdentifier(table)
	index := pq.QuoteIdentifier(table + "_expires_at_idx")
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + name + ` (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + name + ` (expires_at) WHERE expires_at IS NOT NULL`,
	}
}

// ApplyMigrations executes the provided SQL statements in order inside one
// transaction.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
