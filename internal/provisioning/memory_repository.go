package provisioning

import (
	"context"
	"sync"
	"time"

	"github.com/lumenbank/onboarding/internal/customer"
)

type memoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]customer.Profile
	numbers  map[string]string
}

// NewMemoryRepository builds an in-memory profile store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		profiles: make(map[string]customer.Profile),
		numbers:  make(map[string]string),
	}
}

func (r *memoryRepository) FindByIdentity(_ context.Context, identityID string) (customer.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[identityID]
	if !ok {
		return customer.Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) Insert(_ context.Context, p customer.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.profiles[p.IdentityID]; exists {
		return ErrProfileExists
	}
	if _, taken := r.numbers[p.AccountNumber]; taken {
		return ErrAccountNumberTaken
	}
	r.profiles[p.IdentityID] = p
	r.numbers[p.AccountNumber] = p.IdentityID
	return nil
}

func (r *memoryRepository) SetDocumentKey(_ context.Context, identityID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[identityID]
	if !ok {
		return ErrNotFound
	}
	p.DocumentKey = key
	r.profiles[identityID] = p
	return nil
}

func (r *memoryRepository) MarkCompleted(_ context.Context, identityID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[identityID]
	if !ok {
		return false, ErrNotFound
	}
	if p.CompletedAt != nil {
		return false, nil
	}
	at = at.UTC()
	p.CompletedAt = &at
	r.profiles[identityID] = p
	return true, nil
}
