package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/geo"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultRadiusMeters    = 100.0
	DefaultDurationMinutes = 15
	defaultCodeAttempts    = 8
)

// Options configures a Service.
type Options struct {
	RadiusMeters    float64
	DurationMinutes int
	// Location fixes the calendar used for Record.Date. Defaults to UTC.
	Location     *time.Location
	CodeAttempts int
	Now          func() time.Time
}

// Service creates sessions and turns valid scans into attendance records.
type Service struct {
	sessions  SessionStore
	ledger    Ledger
	radius    float64
	duration  int
	loc       *time.Location
	attempts  int
	now       func() time.Time
	newCode   func() (string, error)
	listeners []MarkListener
}

// NewService creates a service backed by a session store and a ledger.
func NewService(sessions SessionStore, ledger Ledger, opts Options) *Service {
	s := &Service{
		sessions: sessions,
		ledger:   ledger,
		radius:   opts.RadiusMeters,
		duration: opts.DurationMinutes,
		loc:      opts.Location,
		attempts: opts.CodeAttempts,
		now:      opts.Now,
		newCode:  NewCode,
	}
	if s.radius <= 0 {
		s.radius = DefaultRadiusMeters
	}
	if s.duration <= 0 {
		s.duration = DefaultDurationMinutes
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.attempts <= 0 {
		s.attempts = defaultCodeAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// OnMarked registers listeners called after every successful mark.
func (s *Service) OnMarked(l ...MarkListener) {
	s.listeners = append(s.listeners, l...)
}

// Day returns the ledger date that t belongs to.
func (s *Service) Day(t time.Time) string {
	return t.In(s.loc).Format(DateLayout)
}

// Today returns the ledger date of the current instant.
func (s *Service) Today() string {
	return s.Day(s.now())
}

// CreateSession opens a session at the teacher's position with a fresh code.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, err
	}
	minutes := req.DurationMinutes
	if minutes == 0 {
		minutes = s.duration
	}
	now := s.now().UTC()

	for i := 0; i < s.attempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return Session{}, err
		}
		sess := Session{
			ID:           uuid.NewString(),
			Code:         code,
			TeacherID:    req.TeacherID,
			TeacherName:  req.TeacherName,
			Subject:      strings.TrimSpace(req.Subject),
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			RadiusMeters: s.radius,
			CreatedAt:    now,
			ExpiresAt:    now.Add(time.Duration(minutes) * time.Minute),
			Active:       true,
		}
		err = s.sessions.Create(ctx, sess)
		if errors.Is(err, ErrCodeTaken) {
			log.Printf("session code collision on attempt %d, regenerating", i+1)
			continue
		}
		if err != nil {
			return Session{}, unavailable("create session", err)
		}
		return sess, nil
	}
	return Session{}, fmt.Errorf("%w after %d attempts", ErrCodeTaken, s.attempts)
}

// GetSession returns a session by id regardless of its state.
func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, unavailable("get session", err)
	}
	return sess, nil
}

// CloseSession deactivates a session. Closing a closed session is a no-op.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	err := s.sessions.Deactivate(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return unavailable("deactivate session", err)
	}
	return nil
}

// ActiveSessions lists a teacher's open sessions, newest first.
func (s *Service) ActiveSessions(ctx context.Context, teacherID string) ([]Session, error) {
	list, err := s.sessions.ListActiveByTeacher(ctx, teacherID, s.now())
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	return list, nil
}

// Records runs a read-only ledger query.
func (s *Service) Records(ctx context.Context, f Filter) ([]Record, error) {
	recs, err := s.ledger.Query(ctx, f.normalized())
	if err != nil {
		return nil, unavailable("query records", err)
	}
	return recs, nil
}

// Verify checks a scan against the current time.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (Record, error) {
	return s.VerifyAt(ctx, req, s.now())
}

// VerifyAt validates a scan taken at now and appends the attendance record.
// The checks run in order: session lookup, expiry, geofence, duplicate.
func (s *Service) VerifyAt(ctx context.Context, req VerifyRequest, now time.Time) (Record, error) {
	if err := req.validate(); err != nil {
		return Record{}, err
	}

	sess, err := s.sessions.FindActiveByCode(ctx, strings.TrimSpace(req.Code))
	if errors.Is(err, ErrSessionNotFound) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, unavailable("find session", err)
	}

	if sess.Expired(now) {
		if err := s.sessions.Deactivate(ctx, sess.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			log.Printf("deactivate expired session %s failed: %v", sess.ID, err)
			return Record{}, fmt.Errorf("%w (deactivate: %w)", ErrSessionExpired, err)
		}
		return Record{}, ErrSessionExpired
	}

	d := geo.Distance(sess.Latitude, sess.Longitude, req.Latitude, req.Longitude)
	if !(d <= sess.RadiusMeters) {
		return Record{}, &OutOfRangeError{DistanceMeters: d, AllowedMeters: sess.RadiusMeters}
	}

	date := s.Day(now)
	exists, err := s.ledger.Exists(ctx, req.StudentID, sess.Subject, date)
	if err != nil {
		return Record{}, unavailable("check ledger", err)
	}
	if exists {
		return Record{}, ErrAlreadyMarked
	}

	rec, err := s.ledger.Append(ctx, Record{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		RollNumber:  req.RollNumber,
		Subject:     sess.Subject,
		TeacherID:   sess.TeacherID,
		TeacherName: sess.TeacherName,
		Status:      StatusPresent,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Date:        date,
		MarkedAt:    now.UTC(),
	})
	if errors.Is(err, ErrDuplicateKey) {
		return Record{}, ErrAlreadyMarked
	}
	if err != nil {
		return Record{}, unavailable("append record", err)
	}

	for _, l := range s.listeners {
		l.RecordMarked(ctx, rec)
	}
	return rec, nil
}
