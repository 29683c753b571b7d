package game

import (
	"sort"
	"sync"

	"telegram-casino-bot/internal/model"
	"telegram-casino-bot/internal/pkg/lock"
)

// Store holds game sessions by ID. Implementations need not serialize
// read-modify-write sequences; Table does that.
type Store interface {
	Get(id string) (*model.GameSession, bool)
	Put(s *model.GameSession)
	Delete(id string)
	List() []*model.GameSession
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.GameSession
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*model.GameSession)}
}

func (m *MemoryStore) Get(id string) (*model.GameSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (m *MemoryStore) Put(s *model.GameSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) List() []*model.GameSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.GameSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// Table is the process-wide game session table. Every mutation of a
// session happens inside Update or RemoveIf under that session's lock, so a
// status check and the transition it guards are one step.
type Table struct {
	store Store
	locks *lock.KeyLock[string]
}

// NewTable wraps store.
func NewTable(store Store) *Table {
	return &Table{store: store, locks: lock.New[string]()}
}

// Insert adds a new session.
func (t *Table) Insert(s *model.GameSession) {
	t.locks.Lock(s.ID)
	defer t.locks.Unlock(s.ID)
	t.store.Put(s)
}

// Snapshot returns a copy of the session.
func (t *Table) Snapshot(id string) (*model.GameSession, bool) {
	return t.store.Get(id)
}

// Has reports whether id is a live session.
func (t *Table) Has(id string) bool {
	_, ok := t.store.Get(id)
	return ok
}

// Update applies fn to the session and stores the result when fn returns
// nil. It returns a copy of the updated session.
func (t *Table) Update(id string, fn func(s *model.GameSession) error) (*model.GameSession, error) {
	t.locks.Lock(id)
	defer t.locks.Unlock(id)

	s, ok := t.store.Get(id)
	if !ok {
		return nil, ErrGameNotFound
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	t.store.Put(s)
	return s.Clone(), nil
}

// RemoveIf deletes the session when fn returns nil and returns the removed
// session as fn left it. Only one caller can ever remove a given session.
func (t *Table) RemoveIf(id string, fn func(s *model.GameSession) error) (*model.GameSession, error) {
	t.locks.Lock(id)
	defer t.locks.Unlock(id)

	s, ok := t.store.Get(id)
	if !ok {
		return nil, ErrGameNotFound
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	t.store.Delete(id)
	return s, nil
}

// List returns copies of every session, oldest first.
func (t *Table) List() []*model.GameSession {
	sessions := t.store.List()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	return len(t.store.List())
}
