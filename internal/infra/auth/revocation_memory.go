package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulse/internal/domain/service"
)

// memoryRevocationStore keeps revoked token identifiers in process memory.
// Suitable for development and tests; production deployments use the durable
// Postgres-backed store so revocations survive restarts and reach every
// serving instance.
type memoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]time.Time
}

// NewMemoryRevocationStore is the constructor for memoryRevocationStore.
func NewMemoryRevocationStore() service.RevocationStore {
	return &memoryRevocationStore{
		entries: make(map[uuid.UUID]time.Time),
	}
}

// Revoke records a token identifier as revoked until expiresAt.
func (s *memoryRevocationStore) Revoke(_ context.Context, tokenID uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tokenID] = expiresAt

	return nil
}

// IsRevoked reports whether a token identifier is currently revoked. An entry
// whose expiry has passed no longer counts; the sweep will drop it.
func (s *memoryRevocationStore) IsRevoked(_ context.Context, tokenID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, ok := s.entries[tokenID]
	if !ok {
		return false, nil
	}

	return time.Now().Before(expiresAt), nil
}

// PurgeExpired drops entries whose expiry has passed.
func (s *memoryRevocationStore) PurgeExpired(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for tokenID, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, tokenID)
		}
	}

	return nil
}
