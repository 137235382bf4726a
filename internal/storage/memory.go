package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/interview-engine/internal/models"
)

// MemoryRepository implements Repository in process memory.
// Sessions are deep-copied on the way in and out.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	clients  map[string]*models.ApiClient
	nextID   int
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
		clients:  make(map[string]*models.ApiClient),
	}
}

// CreateSession stores a new session
func (r *MemoryRepository) CreateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return ErrConflict
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

// GetSession retrieves a session by ID and owner
func (r *MemoryRepository) GetSession(ctx context.Context, id, ownerID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || s.OwnerID != ownerID {
		return nil, nil
	}
	return s.Clone(), nil
}

// ListSessions returns an owner's sessions, newest first
func (r *MemoryRepository) ListSessions(ctx context.Context, ownerID string, filters models.ListFilters) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Session
	for _, s := range r.sessions {
		if s.OwnerID != ownerID {
			continue
		}
		if filters.Status != "" && s.Status != filters.Status {
			continue
		}
		if filters.Topic != "" && s.Topic != filters.Topic {
			continue
		}
		result = append(result, s.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []*models.Session{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && len(result) > filters.Limit {
		result = result[:filters.Limit]
	}
	if result == nil {
		result = []*models.Session{}
	}
	return result, nil
}

// UpdateSession replaces a session if its stored status still matches expected
func (r *MemoryRepository) UpdateSession(ctx context.Context, s *models.Session, expected models.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.ID]
	if !ok || current.OwnerID != s.OwnerID {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrConflict
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

// DeleteSession removes a session owned by ownerID
func (r *MemoryRepository) DeleteSession(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// DeleteCompletedBefore removes completed sessions finished before cutoff
func (r *MemoryRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.sessions {
		if s.Status == models.SessionCompleted && s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// GetClientByApiKey finds an API client by its key
func (r *MemoryRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Permissions = append([]string(nil), c.Permissions...)
	return &cp, nil
}

// CreateClient registers an API client; an existing key is left untouched
func (r *MemoryRepository) CreateClient(ctx context.Context, c *models.ApiClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.ApiKey]; exists {
		return nil
	}
	r.nextID++
	cp := *c
	cp.ID = r.nextID
	cp.Permissions = append([]string(nil), c.Permissions...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.clients[c.ApiKey] = &cp
	return nil
}

// UpdateClientLastUsed records the time an API key was last used
func (r *MemoryRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[apiKey]; ok {
		now := time.Now()
		c.LastUsedAt = &now
	}
	return nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
