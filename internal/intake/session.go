package intake

import (
	"context"
	"sync"
	"time"

	"medbot/internal/domain"
)

// Fields holds validated values keyed by field name.
type Fields map[string]any

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f Fields) Times(key string) []domain.TimeOfDay {
	t, _ := f[key].([]domain.TimeOfDay)
	return t
}

func (f Fields) Glucose(key string) (domain.Glucose, bool) {
	g, ok := f[key].(domain.Glucose)
	return g, ok
}

func (f Fields) Pressure(key string) (domain.Pressure, bool) {
	p, ok := f[key].(domain.Pressure)
	return p, ok
}

// Session is one user's progress through a flow.
type Session struct {
	ID        string
	UserID    int64
	Flow      FlowKind
	Step      int
	Fields    Fields
	StartedAt time.Time
	UpdatedAt time.Time
}

// SessionStore persists sessions. Implementations must be safe for concurrent
// use; the Machine serializes access per user on top of it.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (Session, bool, error)
	Set(ctx context.Context, s Session) error
	Delete(ctx context.Context, userID int64) error
	// Expired lists sessions whose UpdatedAt is before the cutoff.
	Expired(ctx context.Context, before time.Time) ([]Session, error)
}

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[int64]Session{}}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return Session{}, false, nil
	}
	s.Fields = s.Fields.clone()
	return s, true, nil
}

func (m *MemoryStore) Set(_ context.Context, s Session) error {
	s.Fields = s.Fields.clone()
	m.mu.Lock()
	m.sessions[s.UserID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Expired(_ context.Context, before time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			s.Fields = s.Fields.clone()
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
