package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/squirrel"

	"medbot/internal/domain"
	logx "medbot/pkg/logx"
)

const (
	tableUsers    = "users"
	tableEvents   = "events"
	tableAcks     = "acknowledgements"
	tableReadings = "readings"
)

var eventColumns = []string{"id", "user_id", "name", "dose", "times", "created_at"}

// sqlStore implements Store for any database/sql driver whose dialect
// supports ON CONFLICT and RETURNING (SQLite >= 3.35, PostgreSQL).
type sqlStore struct {
	db  *sql.DB
	sb  squirrel.StatementBuilderType
	log logx.Logger
	now func() time.Time

	// mapErr translates driver errors into the package sentinels.
	mapErr func(error) error
}

func newSQLStore(db *sql.DB, ph squirrel.PlaceholderFormat, log logx.Logger, mapErr func(error) error) *sqlStore {
	if mapErr == nil {
		mapErr = func(err error) error { return err }
	}
	return &sqlStore{
		db:     db,
		sb:     squirrel.StatementBuilder.PlaceholderFormat(ph),
		log:    log,
		now:    time.Now,
		mapErr: mapErr,
	}
}

func (s *sqlStore) fail(op string, err error) error {
	return storeErr(op, s.mapErr(err))
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.fail("ping", s.db.PingContext(ctx))
}

func (s *sqlStore) GetUser(ctx context.Context, id int64) (domain.User, bool, error) {
	q, args, err := s.sb.Select("id", "name", "created_at").
		From(tableUsers).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.User{}, false, s.fail("get_user", err)
	}
	var (
		u       domain.User
		created int64
	)
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&u.ID, &u.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, s.fail("get_user", err)
	}
	u.CreatedAt = time.UnixMilli(created)
	return u, true, nil
}

func (s *sqlStore) UpsertUser(ctx context.Context, id int64, name string) error {
	q, args, err := s.sb.Insert(tableUsers).
		Columns("id", "name", "created_at").
		Values(id, name, s.now().UnixMilli()).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = excluded.name").
		ToSql()
	if err != nil {
		return s.fail("upsert_user", err)
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return s.fail("upsert_user", err)
}

func (s *sqlStore) ListEvents(ctx context.Context, userID *int64) ([]domain.ScheduledEvent, error) {
	sel := s.sb.Select(eventColumns...).From(tableEvents).OrderBy("id")
	if userID != nil {
		sel = sel.Where(squirrel.Eq{"user_id": *userID})
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, s.fail("list_events", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail("list_events", err)
	}
	defer rows.Close()

	var out []domain.ScheduledEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, s.fail("list_events", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list_events", err)
	}
	return out, nil
}

func (s *sqlStore) GetEvent(ctx context.Context, eventID, userID int64) (domain.ScheduledEvent, bool, error) {
	q, args, err := s.sb.Select(eventColumns...).
		From(tableEvents).
		Where(squirrel.Eq{"id": eventID, "user_id": userID}).
		ToSql()
	if err != nil {
		return domain.ScheduledEvent{}, false, s.fail("get_event", err)
	}
	e, err := scanEvent(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScheduledEvent{}, false, nil
	}
	if err != nil {
		return domain.ScheduledEvent{}, false, s.fail("get_event", err)
	}
	return e, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (domain.ScheduledEvent, error) {
	var (
		e       domain.ScheduledEvent
		times   string
		created int64
	)
	if err := r.Scan(&e.ID, &e.UserID, &e.Name, &e.Dose, &times, &created); err != nil {
		return domain.ScheduledEvent{}, err
	}
	e.Times = domain.SplitTimes(times)
	e.CreatedAt = time.UnixMilli(created)
	return e, nil
}

func (s *sqlStore) CreateEvent(ctx context.Context, userID int64, name, dose string, times []domain.TimeOfDay) (int64, error) {
	if err := validateEvent(name, times); err != nil {
		return 0, err
	}
	q, args, err := s.sb.Insert(tableEvents).
		Columns("user_id", "name", "dose", "times", "created_at").
		Values(userID, name, dose, domain.JoinTimes(times), s.now().UnixMilli()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, s.fail("create_event", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, s.fail("create_event", err)
	}
	return id, nil
}

func (s *sqlStore) DeleteEvent(ctx context.Context, eventID, userID int64) (bool, error) {
	q, args, err := s.sb.Delete(tableEvents).
		Where(squirrel.Eq{"id": eventID, "user_id": userID}).
		ToSql()
	if err != nil {
		return false, s.fail("delete_event", err)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, s.fail("delete_event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail("delete_event", err)
	}
	return n > 0, nil
}

func (s *sqlStore) ListUserIDsWithEvents(ctx context.Context) ([]int64, error) {
	q, args, err := s.sb.Select("user_id").Distinct().From(tableEvents).OrderBy("user_id").ToSql()
	if err != nil {
		return nil, s.fail("list_event_users", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail("list_event_users", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, s.fail("list_event_users", err)
		}
		out = append(out, id)
	}
	return out, s.fail("list_event_users", rows.Err())
}

func (s *sqlStore) RecordAcknowledgement(ctx context.Context, a domain.Acknowledgement) (int64, error) {
	if a.At.IsZero() {
		a.At = s.now()
	}
	q, args, err := s.sb.Insert(tableAcks).
		Columns("user_id", "event_id", "event_name", "acked_at").
		Values(a.UserID, a.EventID, a.EventName, a.At.UnixMilli()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, s.fail("record_ack", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, s.fail("record_ack", err)
	}
	return id, nil
}

func (s *sqlStore) RecentAcknowledgement(ctx context.Context, aq domain.AckQuery) (bool, error) {
	sel := s.sb.Select("1").
		From(tableAcks).
		Where(squirrel.Eq{"user_id": aq.UserID}).
		Where(squirrel.Gt{"acked_at": aq.Since.UnixMilli()}).
		Limit(1)
	if !aq.Until.IsZero() {
		sel = sel.Where(squirrel.LtOrEq{"acked_at": aq.Until.UnixMilli()})
	}
	if aq.EventID != 0 {
		sel = sel.Where(squirrel.Eq{"event_id": aq.EventID})
	} else {
		// substr instead of LIKE keeps % and _ in names literal.
		sel = sel.Where(squirrel.Expr("substr(event_name, 1, ?) = ?", utf8.RuneCountInString(aq.NamePrefix), aq.NamePrefix))
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return false, s.fail("recent_ack", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.fail("recent_ack", err)
	}
	return true, nil
}

func (s *sqlStore) AcknowledgementsBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.Acknowledgement, error) {
	q, args, err := s.sb.Select("id", "user_id", "event_id", "event_name", "acked_at").
		From(tableAcks).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"acked_at": from.UnixMilli()}).
		Where(squirrel.Lt{"acked_at": to.UnixMilli()}).
		OrderBy("acked_at", "id").
		ToSql()
	if err != nil {
		return nil, s.fail("list_acks", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail("list_acks", err)
	}
	defer rows.Close()

	var out []domain.Acknowledgement
	for rows.Next() {
		var (
			a  domain.Acknowledgement
			at int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.EventID, &a.EventName, &at); err != nil {
			return nil, s.fail("list_acks", err)
		}
		a.At = time.UnixMilli(at)
		out = append(out, a)
	}
	return out, s.fail("list_acks", rows.Err())
}

func (s *sqlStore) RecordReading(ctx context.Context, r domain.Reading) (int64, error) {
	if !r.Kind.Valid() {
		return 0, domain.Invalid("kind", "unknown reading kind "+string(r.Kind))
	}
	if r.At.IsZero() {
		r.At = s.now()
	}
	q, args, err := s.sb.Insert(tableReadings).
		Columns("user_id", "kind", "primary_value", "secondary_value", "recorded_at").
		Values(r.UserID, string(r.Kind), r.Primary, r.Secondary, r.At.UnixMilli()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, s.fail("record_reading", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, s.fail("record_reading", err)
	}
	return id, nil
}

func (s *sqlStore) RecentReadings(ctx context.Context, kind domain.ReadingKind, userID int64, limit int) ([]domain.Reading, error) {
	if limit <= 0 {
		limit = 5
	}
	q, args, err := s.sb.Select("id", "user_id", "kind", "primary_value", "secondary_value", "recorded_at").
		From(tableReadings).
		Where(squirrel.Eq{"user_id": userID, "kind": string(kind)}).
		OrderBy("recorded_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, s.fail("recent_readings", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail("recent_readings", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var (
			r  domain.Reading
			k  string
			at int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &k, &r.Primary, &r.Secondary, &at); err != nil {
			return nil, s.fail("recent_readings", err)
		}
		r.Kind = domain.ReadingKind(k)
		r.At = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, s.fail("recent_readings", rows.Err())
}
