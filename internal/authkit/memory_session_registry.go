package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var errNonPositiveSessionTTL = errors.New("session_registry.non_positive_ttl")

// MemorySessionRegistry is an in-memory SessionRegistry intended for tests and dev.
type MemorySessionRegistry struct {
	mutex  sync.Mutex
	byHash map[string]*memorySession
	clock  Clock
}

type memorySession struct {
	UserID    int64
	Profile   Profile
	ExpiresAt time.Time
}

// NewMemorySessionRegistry creates an empty registry.
func NewMemorySessionRegistry(clock Clock) *MemorySessionRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemorySessionRegistry{byHash: make(map[string]*memorySession), clock: clock}
}

func (registry *MemorySessionRegistry) Create(ctx context.Context, sessionID string, profile Profile, ttl time.Duration) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session_registry.create.memory: %w", ErrSessionNotFound)
	}
	if ttl <= 0 {
		return fmt.Errorf("session_registry.create.memory: %w", errNonPositiveSessionTTL)
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.byHash[HashSessionID(sessionID)] = &memorySession{
		UserID:    profile.ID,
		Profile:   profile,
		ExpiresAt: registry.clock.Now().Add(ttl),
	}
	return nil
}

func (registry *MemorySessionRegistry) Get(ctx context.Context, sessionID string) (Session, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	hashValue := HashSessionID(sessionID)
	record, ok := registry.byHash[hashValue]
	if !ok {
		return Session{}, fmt.Errorf("session_registry.get.memory: %w", ErrSessionNotFound)
	}
	if !record.ExpiresAt.After(registry.clock.Now()) {
		delete(registry.byHash, hashValue)
		return Session{}, fmt.Errorf("session_registry.get.memory: %w", ErrSessionNotFound)
	}
	return Session{UserID: record.UserID, Profile: record.Profile, ExpiresAt: record.ExpiresAt}, nil
}

func (registry *MemorySessionRegistry) Destroy(ctx context.Context, sessionID string) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	delete(registry.byHash, HashSessionID(sessionID))
	return nil
}

func (registry *MemorySessionRegistry) DestroyAllForUser(ctx context.Context, userID int64) (int64, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	now := registry.clock.Now()
	var destroyed int64
	for hashValue, record := range registry.byHash {
		if record.UserID != userID {
			continue
		}
		delete(registry.byHash, hashValue)
		if record.ExpiresAt.After(now) {
			destroyed++
		}
	}
	return destroyed, nil
}

func (registry *MemorySessionRegistry) OnlineStatuses(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	now := registry.clock.Now()
	online := make(map[int64]bool)
	for _, record := range registry.byHash {
		if record.ExpiresAt.After(now) {
			online[record.UserID] = true
		}
	}
	statuses := make(map[int64]bool, len(userIDs))
	for _, userID := range userIDs {
		statuses[userID] = online[userID]
	}
	return statuses, nil
}
