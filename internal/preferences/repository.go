package preferences

import (
	"context"
	"sync"
)

// Repository defines the interface for preference storage.
type Repository interface {
	// Get returns the stored preferences, or ErrNotFound.
	Get(ctx context.Context, userID string) (*Preferences, error)

	// Save creates or replaces a user's preferences.
	Save(ctx context.Context, p *Preferences) error

	// Delete removes a user's preferences.
	Delete(ctx context.Context, userID string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{prefs: make(map[string]Preferences)}
}

// Get returns a copy of the stored preferences.
func (r *InMemoryRepository) Get(_ context.Context, userID string) (*Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Save stores a copy of p.
func (r *InMemoryRepository) Save(_ context.Context, p *Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[p.UserID] = *p
	return nil
}

// Delete removes a user's preferences.
func (r *InMemoryRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prefs, userID)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
