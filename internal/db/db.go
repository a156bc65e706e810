package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the pool tables if they do not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pool_sessions (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT FALSE,
			unresolved_pool BOOLEAN NOT NULL DEFAULT FALSE,
			pool_size BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			closed_at TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS pool_participants (
			session_id TEXT NOT NULL REFERENCES pool_sessions(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			stake_amount BIGINT NOT NULL CHECK (stake_amount > 0),
			outcome TEXT NOT NULL CHECK (outcome IN ('pending', 'completed', 'failed')),
			payout BIGINT CHECK (payout >= 0),
			venmo_handle TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS pool_transfers (
			session_id TEXT NOT NULL REFERENCES pool_sessions(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			from_user_id TEXT NOT NULL,
			to_user_id TEXT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			status TEXT NOT NULL,
			planned_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_pool_transfers_status ON pool_transfers(status, planned_at);

		CREATE TABLE IF NOT EXISTS pool_violations (
			session_id TEXT NOT NULL REFERENCES pool_sessions(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			reported_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, user_id, reported_at)
		);
	`)
	return err
}
