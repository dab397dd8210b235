package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Identity
	byEmail map[string]string
	codes   map[string]ConfirmationCode
}

// NewMemoryRepository builds an in-memory identity store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]Identity),
		byEmail: make(map[string]string),
		codes:   make(map[string]ConfirmationCode),
	}
}

func (r *memoryRepository) Create(_ context.Context, ident Identity) (Identity, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, exists := r.byEmail[ident.Email]; exists {
		return r.byID[id], false, nil
	}
	ident.UpdatedAt = ident.CreatedAt
	r.byID[ident.ID] = ident
	r.byEmail[ident.Email] = ident.ID
	return ident, true, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return ident, nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) update(id string, fn func(*Identity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&ident)
	r.byID[id] = ident
	return nil
}

func (r *memoryRepository) UpdatePasswordHash(_ context.Context, id string, hash []byte) error {
	return r.update(id, func(ident *Identity) {
		if ident.ConfirmedAt == nil {
			ident.PasswordHash = hash
			ident.UpdatedAt = time.Now().UTC()
		}
	})
}

func (r *memoryRepository) MarkConfirmed(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(ident *Identity) {
		if ident.ConfirmedAt == nil {
			at := at.UTC()
			ident.ConfirmedAt = &at
		}
	})
}

func (r *memoryRepository) RecordLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(ident *Identity) {
		at := at.UTC()
		ident.LastLogin = &at
	})
}

func (r *memoryRepository) BumpTokenVersion(_ context.Context, id string) (int, error) {
	var version int
	err := r.update(id, func(ident *Identity) {
		ident.TokenVersion++
		version = ident.TokenVersion
	})
	return version, err
}

func (r *memoryRepository) SaveCode(_ context.Context, code ConfirmationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[code.IdentityID]; !ok {
		return ErrNotFound
	}
	r.codes[code.IdentityID] = code
	return nil
}

func (r *memoryRepository) FindCode(_ context.Context, identityID string) (ConfirmationCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.codes[identityID]
	if !ok {
		return ConfirmationCode{}, ErrNotFound
	}
	return code, nil
}

func (r *memoryRepository) IncrementCodeAttempts(_ context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[identityID]
	if !ok {
		return ErrNotFound
	}
	code.Attempts++
	r.codes[identityID] = code
	return nil
}

func (r *memoryRepository) DeleteCode(_ context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, identityID)
	return nil
}
