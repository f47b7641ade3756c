// Package migrations applies the ledger schema in order at startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements are executed in order; each must be idempotent so restarts are
// safe without tracking applied versions.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		userid UUID PRIMARY KEY,
		name TEXT NOT NULL,
		username TEXT UNIQUE NOT NULL,
		phno TEXT NOT NULL,
		address TEXT NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transfers (
		txn_id UUID PRIMARY KEY,
		amount BIGINT NOT NULL CHECK (amount > 0),
		from_username TEXT NOT NULL REFERENCES users(username),
		to_username TEXT NOT NULL REFERENCES users(username),
		time TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers (from_username, time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers (to_username, time DESC)`,
}

// Apply runs every migration statement against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
