package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reviewdraft/config"
	"reviewdraft/pkg/logger"

	_ "github.com/lib/pq"
)

const (
	connectAttempts = 5
	retryDelay      = 2 * time.Second
)

// Connect opens the postgres pool and pings it, retrying a few times in case of
// temporary DNS/network blips.
func Connect(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	for i := 0; i < connectAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return db, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", retryDelay, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", connectAttempts, err)
}

const schema = `
CREATE TABLE IF NOT EXISTS review_drafts (
	draft_key  TEXT PRIMARY KEY,
	record_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS review_decisions (
	id         BIGSERIAL PRIMARY KEY,
	record_id  TEXT NOT NULL,
	decision   TEXT NOT NULL,
	notes      TEXT NOT NULL,
	decided_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Migrate creates the draft and decision tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
