package store

import (
	"sort"
	"sync"

	"gamelog/pkg/domain"
)

// MemoryStore keeps users and games in-process. Used by tests and local runs
// without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]domain.Game
	users map[string]domain.User // key: user ID
	email map[string]string      // email -> user ID
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[string]domain.Game),
		users: make(map[string]domain.User),
		email: make(map[string]string),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateGame stores a new game.
func (m *MemoryStore) CreateGame(g domain.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = g
	return nil
}

// UpdateGame replaces an owned game, keeping its creation time.
func (m *MemoryStore) UpdateGame(g domain.Game) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.games[g.ID]
	if !ok || prev.OwnerID != g.OwnerID {
		return false, nil
	}
	g.CreatedAt = prev.CreatedAt
	m.games[g.ID] = g
	return true, nil
}

// GetGame retrieves an owned game.
func (m *MemoryStore) GetGame(ownerID, id string) (domain.Game, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok || g.OwnerID != ownerID {
		return domain.Game{}, false, nil
	}
	return g, true, nil
}

// ListGamesByOwner matches the ordering of GormStore.
func (m *MemoryStore) ListGamesByOwner(ownerID string) ([]domain.Game, error) {
	m.mu.RLock()
	res := make([]domain.Game, 0, len(m.games))
	for _, g := range m.games {
		if g.OwnerID == ownerID {
			res = append(res, g)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.CompletionDate != b.CompletionDate {
			return a.CompletionDate > b.CompletionDate
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return res, nil
}

// DeleteGame removes an owned game.
func (m *MemoryStore) DeleteGame(ownerID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok || g.OwnerID != ownerID {
		return false, nil
	}
	delete(m.games, id)
	return true, nil
}
