package authkit

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationRegistry is an in-process RevocationRegistry for tests and single-node dev runs.
type MemoryRevocationRegistry struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	clock   Clock
}

// NewMemoryRevocationRegistry constructs an empty registry.
func NewMemoryRevocationRegistry(clock Clock) *MemoryRevocationRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryRevocationRegistry{
		entries: make(map[string]time.Time),
		clock:   clock,
	}
}

func (registry *MemoryRevocationRegistry) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := registry.revoke(tokenID, expiresAt, false)
	return err
}

func (registry *MemoryRevocationRegistry) RevokeOnce(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	return registry.revoke(tokenID, expiresAt, true)
}

func (registry *MemoryRevocationRegistry) revoke(tokenID string, expiresAt time.Time, onlyIfAbsent bool) (bool, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	now := registry.clock.Now()
	registry.purgeExpiredLocked(now)
	if !expiresAt.After(now) {
		return false, nil
	}
	if _, exists := registry.entries[tokenID]; exists && onlyIfAbsent {
		return false, nil
	}
	registry.entries[tokenID] = expiresAt
	return true, nil
}

func (registry *MemoryRevocationRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	expiresAt, exists := registry.entries[tokenID]
	if !exists {
		return false, nil
	}
	if !expiresAt.After(registry.clock.Now()) {
		delete(registry.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Len reports the number of live entries.
func (registry *MemoryRevocationRegistry) Len() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.purgeExpiredLocked(registry.clock.Now())
	return len(registry.entries)
}

func (registry *MemoryRevocationRegistry) purgeExpiredLocked(now time.Time) {
	for tokenID, expiresAt := range registry.entries {
		if !expiresAt.After(now) {
			delete(registry.entries, tokenID)
		}
	}
}
