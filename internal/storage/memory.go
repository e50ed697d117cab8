package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"medbot/internal/domain"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	users    map[int64]domain.User
	events   map[int64]domain.ScheduledEvent
	acks     []domain.Acknowledgement
	readings []domain.Reading
	seq      int64
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:  map[int64]domain.User{},
		events: map[int64]domain.ScheduledEvent{},
		now:    time.Now,
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func (m *Memory) GetUser(_ context.Context, id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *Memory) UpsertUser(_ context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		u = domain.User{ID: id, CreatedAt: m.now()}
	}
	u.Name = name
	m.users[id] = u
	return nil
}

func (m *Memory) ListEvents(_ context.Context, userID *int64) ([]domain.ScheduledEvent, error) {
	m.mu.RLock()
	out := make([]domain.ScheduledEvent, 0, len(m.events))
	for _, e := range m.events {
		if userID != nil && e.UserID != *userID {
			continue
		}
		e.Times = append([]domain.TimeOfDay(nil), e.Times...)
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetEvent(_ context.Context, eventID, userID int64) (domain.ScheduledEvent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[eventID]
	if !ok || e.UserID != userID {
		return domain.ScheduledEvent{}, false, nil
	}
	e.Times = append([]domain.TimeOfDay(nil), e.Times...)
	return e, true, nil
}

func (m *Memory) CreateEvent(_ context.Context, userID int64, name, dose string, times []domain.TimeOfDay) (int64, error) {
	if err := validateEvent(name, times); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return 0, storeErr("create_event", ErrForeignKey)
	}
	id := m.nextID()
	m.events[id] = domain.ScheduledEvent{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Dose:      dose,
		Times:     append([]domain.TimeOfDay(nil), times...),
		CreatedAt: m.now(),
	}
	return id, nil
}

func (m *Memory) DeleteEvent(_ context.Context, eventID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok || e.UserID != userID {
		return false, nil
	}
	delete(m.events, eventID)
	return true, nil
}

func (m *Memory) ListUserIDsWithEvents(context.Context) ([]int64, error) {
	m.mu.RLock()
	seen := map[int64]struct{}{}
	for _, e := range m.events {
		seen[e.UserID] = struct{}{}
	}
	m.mu.RUnlock()
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) RecordAcknowledgement(_ context.Context, a domain.Acknowledgement) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[a.UserID]; !ok {
		return 0, storeErr("record_ack", ErrForeignKey)
	}
	if a.At.IsZero() {
		a.At = m.now()
	}
	a.ID = m.nextID()
	m.acks = append(m.acks, a)
	return a.ID, nil
}

func (m *Memory) RecentAcknowledgement(_ context.Context, q domain.AckQuery) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.acks {
		if q.Matches(a) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) AcknowledgementsBetween(_ context.Context, userID int64, from, to time.Time) ([]domain.Acknowledgement, error) {
	m.mu.RLock()
	var out []domain.Acknowledgement
	for _, a := range m.acks {
		if a.UserID == userID && !a.At.Before(from) && a.At.Before(to) {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (m *Memory) RecordReading(_ context.Context, r domain.Reading) (int64, error) {
	if !r.Kind.Valid() {
		return 0, domain.Invalid("kind", "unknown reading kind "+string(r.Kind))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[r.UserID]; !ok {
		return 0, storeErr("record_reading", ErrForeignKey)
	}
	if r.At.IsZero() {
		r.At = m.now()
	}
	r.ID = m.nextID()
	m.readings = append(m.readings, r)
	return r.ID, nil
}

func (m *Memory) RecentReadings(_ context.Context, kind domain.ReadingKind, userID int64, limit int) ([]domain.Reading, error) {
	if limit <= 0 {
		limit = 5
	}
	m.mu.RLock()
	var out []domain.Reading
	for _, r := range m.readings {
		if r.UserID == userID && r.Kind == kind {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
