package authkitpg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tyemirov/dualauth/internal/authkit"
)

var errNonPositiveSessionTTL = errors.New("session_registry.non_positive_ttl")

// PostgresSessionRegistry persists cookie sessions in PostgreSQL through pgx.
type PostgresSessionRegistry struct {
	pool  Querier
	clock authkit.Clock
}

// NewPostgresSessionRegistry constructs a registry. A nil clock reads the wall clock.
func NewPostgresSessionRegistry(pool Querier, clock authkit.Clock) *PostgresSessionRegistry {
	if clock == nil {
		clock = authkit.SystemClock{}
	}
	return &PostgresSessionRegistry{pool: pool, clock: clock}
}

func (registry *PostgresSessionRegistry) Create(ctx context.Context, sessionID string, profile authkit.Profile, ttl time.Duration) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session_registry.create.pgx: %w", authkit.ErrSessionNotFound)
	}
	if ttl <= 0 {
		return fmt.Errorf("session_registry.create.pgx: %w", errNonPositiveSessionTTL)
	}
	encoded, encodeErr := json.Marshal(profile)
	if encodeErr != nil {
		return fmt.Errorf("session_registry.create.pgx: %w", encodeErr)
	}
	_, execErr := registry.pool.Exec(ctx, `
INSERT INTO sessions (sid_hash, user_id, profile, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sid_hash) DO UPDATE SET user_id = EXCLUDED.user_id, profile = EXCLUDED.profile, expires_at = EXCLUDED.expires_at
`, authkit.HashSessionID(sessionID), profile.ID, string(encoded), registry.clock.Now().UTC().Add(ttl))
	if execErr != nil {
		return fmt.Errorf("session_registry.create.pgx: %w", execErr)
	}
	return nil
}

func (registry *PostgresSessionRegistry) Get(ctx context.Context, sessionID string) (authkit.Session, error) {
	var userID int64
	var encodedProfile string
	var expiresAt time.Time
	row := registry.pool.QueryRow(ctx, `
SELECT user_id, profile, expires_at
FROM sessions
WHERE sid_hash = $1 AND expires_at > $2
`, authkit.HashSessionID(sessionID), registry.clock.Now().UTC())
	if scanErr := row.Scan(&userID, &encodedProfile, &expiresAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return authkit.Session{}, fmt.Errorf("session_registry.get.pgx: %w", authkit.ErrSessionNotFound)
		}
		return authkit.Session{}, fmt.Errorf("session_registry.get.pgx: %w", scanErr)
	}
	var profile authkit.Profile
	if err := json.Unmarshal([]byte(encodedProfile), &profile); err != nil {
		return authkit.Session{}, fmt.Errorf("session_registry.decode.pgx: %w", err)
	}
	return authkit.Session{UserID: userID, Profile: profile, ExpiresAt: expiresAt.UTC()}, nil
}

func (registry *PostgresSessionRegistry) Destroy(ctx context.Context, sessionID string) error {
	if _, err := registry.pool.Exec(ctx, `DELETE FROM sessions WHERE sid_hash = $1`, authkit.HashSessionID(sessionID)); err != nil {
		return fmt.Errorf("session_registry.destroy.pgx: %w", err)
	}
	return nil
}

func (registry *PostgresSessionRegistry) DestroyAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := registry.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND expires_at > $2`, userID, registry.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("session_registry.destroy_all.pgx: %w", err)
	}
	if _, err := registry.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("session_registry.destroy_all.pgx: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (registry *PostgresSessionRegistry) OnlineStatuses(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	statuses := make(map[int64]bool, len(userIDs))
	for _, userID := range userIDs {
		statuses[userID] = false
	}
	if len(userIDs) == 0 {
		return statuses, nil
	}
	rows, err := registry.pool.Query(ctx, `
SELECT DISTINCT user_id
FROM sessions
WHERE user_id = ANY($1) AND expires_at > $2
`, userIDs, registry.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("session_registry.online.pgx: %w", err)
	}
	onlineIDs, collectErr := pgx.CollectRows(rows, pgx.RowTo[int64])
	if collectErr != nil {
		return nil, fmt.Errorf("session_registry.online.pgx: %w", collectErr)
	}
	for _, userID := range onlineIDs {
		statuses[userID] = true
	}
	return statuses, nil
}

// PurgeExpired deletes sessions past their expiry.
func (registry *PostgresSessionRegistry) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := registry.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, registry.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("session_registry.purge.pgx: %w", err)
	}
	return tag.RowsAffected(), nil
}
