package intake

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"medbot/internal/domain"
	"medbot/internal/eventbus"
	logx "medbot/pkg/logx"
)

const DefaultTTL = 15 * time.Minute

type ResultKind int

const (
	Advanced ResultKind = iota + 1
	Completed
)

// Result is the outcome of an accepted submission. Prompt is set when the
// flow advanced (and, alongside a ValidationError, repeats the current step).
// Fields is set once the flow completed.
type Result struct {
	Kind   ResultKind
	Flow   FlowKind
	Prompt string
	Fields Fields
}

// Completion is handed to the Committer when the last step validates.
type Completion struct {
	SessionID string
	UserID    int64
	Flow      FlowKind
	Fields    Fields
}

// Committer persists a completed form. When Commit fails the session is left
// on its last step so the user can resend.
type Committer interface {
	Commit(ctx context.Context, c Completion) error
}

type CommitFunc func(ctx context.Context, c Completion) error

func (f CommitFunc) Commit(ctx context.Context, c Completion) error { return f(ctx, c) }

// Machine drives per-user intake sessions.
type Machine struct {
	store  SessionStore
	commit Committer
	clock  clockwork.Clock
	log    logx.Logger
	bus    eventbus.Publisher

	ttl   atomic.Int64
	locks userLocks
}

type Option func(*Machine)

func WithStore(s SessionStore) Option     { return func(m *Machine) { m.store = s } }
func WithClock(c clockwork.Clock) Option  { return func(m *Machine) { m.clock = c } }
func WithLogger(l logx.Logger) Option     { return func(m *Machine) { m.log = l } }
func WithBus(b eventbus.Publisher) Option { return func(m *Machine) { m.bus = b } }
func WithTTL(d time.Duration) Option      { return func(m *Machine) { m.ttl.Store(int64(d)) } }

func NewMachine(commit Committer, opts ...Option) *Machine {
	m := &Machine{commit: commit}
	m.ttl.Store(int64(DefaultTTL))
	for _, o := range opts {
		o(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	return m
}

// SetTTL changes the inactivity timeout; zero disables expiry.
func (m *Machine) SetTTL(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.ttl.Store(int64(d))
}

func (m *Machine) TTL() time.Duration { return time.Duration(m.ttl.Load()) }

// Start begins kind for userID and returns the first prompt.
func (m *Machine) Start(ctx context.Context, userID int64, kind FlowKind) (string, error) {
	flow, ok := FlowFor(kind)
	if !ok || len(flow.Steps) == 0 {
		return "", fmt.Errorf("intake: unknown flow %d", kind)
	}
	unlock := m.locks.lock(userID)
	defer unlock()

	if err := m.resolveExisting(ctx, userID, kind); err != nil {
		return "", err
	}

	now := m.clock.Now()
	s := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Flow:      kind,
		Fields:    Fields{},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Set(ctx, s); err != nil {
		return "", &domain.StoreError{Op: "session_set", Err: err}
	}
	m.emit(eventbus.IntakeStarted, userID, kind)
	m.log.Debug("intake started", logx.Int64("user_id", userID), logx.String("flow", kind.String()), logx.String("session", s.ID))
	return flow.Steps[0].Prompt, nil
}

// resolveExisting applies the overwrite policy for a new trigger: the newest
// trigger wins and any session in progress is discarded.
func (m *Machine) resolveExisting(ctx context.Context, userID int64, next FlowKind) error {
	prev, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return &domain.StoreError{Op: "session_get", Err: err}
	}
	if !ok {
		return nil
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		return &domain.StoreError{Op: "session_delete", Err: err}
	}
	m.emit(eventbus.IntakeCancelled, userID, prev.Flow)
	m.log.Debug("intake replaced",
		logx.Int64("user_id", userID),
		logx.String("prev_flow", prev.Flow.String()),
		logx.String("flow", next.String()),
	)
	return nil
}

// Submit feeds one free-text reply into the user's session.
//
// It returns domain.ErrNoActiveSession when there is nothing to feed, a
// *domain.ValidationError (with Result.Prompt repeating the step) when the
// reply is rejected, or the Committer's error when persisting fails.
func (m *Machine) Submit(ctx context.Context, userID int64, text string) (Result, error) {
	unlock := m.locks.lock(userID)
	defer unlock()

	s, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return Result{}, &domain.StoreError{Op: "session_get", Err: err}
	}
	if !ok {
		return Result{}, domain.ErrNoActiveSession
	}
	now := m.clock.Now()
	if m.expired(s, now) {
		if err := m.store.Delete(ctx, userID); err != nil {
			return Result{}, &domain.StoreError{Op: "session_delete", Err: err}
		}
		m.emit(eventbus.IntakeExpired, userID, s.Flow)
		return Result{}, domain.ErrNoActiveSession
	}

	flow, ok := FlowFor(s.Flow)
	if !ok || s.Step < 0 || s.Step >= len(flow.Steps) {
		_ = m.store.Delete(ctx, userID)
		m.log.Warn("intake session dropped: invalid step",
			logx.Int64("user_id", userID), logx.String("flow", s.Flow.String()), logx.Int("step", s.Step))
		return Result{}, domain.ErrNoActiveSession
	}

	step := flow.Steps[s.Step]
	v, err := step.Parse(text)
	if err != nil {
		m.emit(eventbus.IntakeRejected, userID, s.Flow)
		return Result{Flow: s.Flow, Prompt: step.Prompt}, err
	}

	fields := s.Fields.clone()
	fields[step.Field] = v

	if s.Step+1 < len(flow.Steps) {
		s.Step++
		s.Fields = fields
		s.UpdatedAt = now
		if err := m.store.Set(ctx, s); err != nil {
			return Result{}, &domain.StoreError{Op: "session_set", Err: err}
		}
		return Result{Kind: Advanced, Flow: s.Flow, Prompt: flow.Steps[s.Step].Prompt}, nil
	}

	if m.commit != nil {
		c := Completion{SessionID: s.ID, UserID: userID, Flow: s.Flow, Fields: fields}
		if err := m.commit.Commit(ctx, c); err != nil {
			return Result{}, err
		}
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		m.log.Warn("intake session delete failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	m.emit(eventbus.IntakeCompleted, userID, s.Flow)
	return Result{Kind: Completed, Flow: s.Flow, Fields: fields}, nil
}

// Cancel destroys the user's session. Calling it without a session is a no-op.
func (m *Machine) Cancel(ctx context.Context, userID int64) (bool, error) {
	unlock := m.locks.lock(userID)
	defer unlock()

	s, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return false, &domain.StoreError{Op: "session_get", Err: err}
	}
	if !ok {
		return false, nil
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		return false, &domain.StoreError{Op: "session_delete", Err: err}
	}
	m.emit(eventbus.IntakeCancelled, userID, s.Flow)
	return true, nil
}

// Active reports the live session for userID, if any.
func (m *Machine) Active(ctx context.Context, userID int64) (Session, bool, error) {
	s, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return Session{}, false, &domain.StoreError{Op: "session_get", Err: err}
	}
	if !ok || m.expired(s, m.clock.Now()) {
		return Session{}, false, nil
	}
	return s, true, nil
}

// Sweep destroys sessions idle longer than the TTL and returns them.
func (m *Machine) Sweep(ctx context.Context) ([]Session, error) {
	ttl := m.TTL()
	if ttl <= 0 {
		return nil, nil
	}
	now := m.clock.Now()
	candidates, err := m.store.Expired(ctx, now.Add(-ttl))
	if err != nil {
		return nil, &domain.StoreError{Op: "session_expired", Err: err}
	}

	var out []Session
	var errs []error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		s, swept, err := m.sweepOne(ctx, c.UserID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if swept {
			out = append(out, s)
		}
	}
	return out, errors.Join(errs...)
}

func (m *Machine) sweepOne(ctx context.Context, userID int64, now time.Time) (Session, bool, error) {
	unlock := m.locks.lock(userID)
	defer unlock()

	// Re-read under the lock: the user may have replied since listing.
	s, ok, err := m.store.Get(ctx, userID)
	if err != nil || !ok || !m.expired(s, now) {
		return Session{}, false, err
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		return Session{}, false, err
	}
	m.emit(eventbus.IntakeExpired, userID, s.Flow)
	return s, true, nil
}

func (m *Machine) expired(s Session, now time.Time) bool {
	ttl := m.TTL()
	return ttl > 0 && !now.Before(s.UpdatedAt.Add(ttl))
}

func (m *Machine) emit(typ string, userID int64, kind FlowKind) {
	eventbus.Emit(m.bus, typ, eventbus.IntakeInfo{UserID: userID, Flow: kind.String()})
}
