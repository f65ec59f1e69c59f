package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Data is what the server remembers about a browser between requests.
type Data struct {
	UserID    uint `json:"userId,omitempty"`
	NumVisits int  `json:"numVisits"`
}

// Store keeps session data keyed by session id. Implementations are safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (Data, error)
	Save(ctx context.Context, id string, data Data) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Session is one request's view of a stored session.
type Session struct {
	ID   string
	Data Data

	previous string
	dirty    bool
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), dirty: true}
}

func (s *Session) UserID() uint { return s.Data.UserID }

func (s *Session) IsAuthenticated() bool { return s.Data.UserID != 0 }

// Visit returns the visit count so far and records one more.
func (s *Session) Visit() int {
	n := s.Data.NumVisits
	s.Data.NumVisits++
	s.dirty = true
	return n
}

// Login binds the session to userID under a fresh id so a session id seen
// before login cannot be reused afterwards.
func (s *Session) Login(userID uint) {
	s.rotate()
	s.Data.UserID = userID
}

// Logout drops everything the session held.
func (s *Session) Logout() {
	s.rotate()
	s.Data = Data{}
}

func (s *Session) rotate() {
	if s.previous == "" {
		s.previous = s.ID
	}
	s.ID = uuid.NewString()
	s.dirty = true
}

type memoryEntry struct {
	data    Data
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Expired entries are dropped
// lazily on access.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Data, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Data{}, ErrNotFound
	}
	if m.ttl > 0 && !m.now().Before(entry.expires) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return Data{}, ErrNotFound
	}
	return entry.data, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, data Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = memoryEntry{data: data, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
