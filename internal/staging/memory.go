package staging

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps pending signups in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]PendingSignup
	now     func() time.Time
}

// NewMemoryStore builds an in-memory staging store for tests and local runs.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]PendingSignup), now: time.Now}
}

func (s *MemoryStore) Upsert(_ context.Context, pending PendingSignup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if existing, ok := s.records[pending.IdentityID]; ok {
		pending.CreatedAt = existing.CreatedAt
	} else {
		pending.CreatedAt = now
	}
	pending.UpdatedAt = now
	s.records[pending.IdentityID] = pending
	return nil
}

func (s *MemoryStore) Get(_ context.Context, identityID string) (PendingSignup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending, ok := s.records[identityID]
	if !ok {
		return PendingSignup{}, ErrNotFound
	}
	return pending, nil
}

func (s *MemoryStore) Delete(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identityID)
	return nil
}

// PurgeOlderThan drops records last touched before cutoff.
func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for id, pending := range s.records {
		if pending.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			purged++
		}
	}
	return purged, nil
}

// Len reports how many records are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
