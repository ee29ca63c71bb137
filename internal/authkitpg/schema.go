package authkitpg

import (
	"context"
	"fmt"
)

// EnsureSchema creates the sessions table and its indexes if they do not exist.
// The layout matches the table migrated by the GORM store, so both backends can share it.
func EnsureSchema(ctx context.Context, pool Querier) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
    sid_hash VARCHAR(64) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    profile TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions (user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);
`)
	if err != nil {
		return fmt.Errorf("session_registry.schema.pgx: %w", err)
	}
	return nil
}
