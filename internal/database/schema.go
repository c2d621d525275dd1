package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS linked_accounts (
		game_id  UUID PRIMARY KEY,
		comm_id  VARCHAR(32) NOT NULL,
		username VARCHAR(32),
		CONSTRAINT linked_accounts_comm_id_key UNIQUE (comm_id)
	)`,
	`CREATE INDEX IF NOT EXISTS linked_accounts_username_idx ON linked_accounts (LOWER(username))`,
	`CREATE TABLE IF NOT EXISTS pending_links (
		game_id    UUID PRIMARY KEY,
		code       VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT pending_links_code_key UNIQUE (code)
	)`,
}

// Migrate creates the link tables if they do not exist. It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
