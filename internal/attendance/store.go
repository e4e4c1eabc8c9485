package attendance

import (
	"context"
	"time"
)

// SessionStore holds attendance sessions. Expiry is evaluated lazily by the
// Service; stores only track the Active flag.
type SessionStore interface {
	// Create persists a new session. It returns ErrCodeTaken when another
	// active session already uses the code.
	Create(ctx context.Context, s Session) error
	// FindActiveByCode returns ErrSessionNotFound when no active session has the code.
	FindActiveByCode(ctx context.Context, code string) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	// Deactivate clears the Active flag. Repeating it is a no-op.
	Deactivate(ctx context.Context, id string) error
	// ListActiveByTeacher returns active, unexpired sessions, newest first.
	ListActiveByTeacher(ctx context.Context, teacherID string, now time.Time) ([]Session, error)
}

// Ledger is the append-only record store. Append is the point where the
// one-record-per-student-subject-day rule is enforced.
type Ledger interface {
	Exists(ctx context.Context, studentID, subject, date string) (bool, error)
	Append(ctx context.Context, r Record) (Record, error)
	Query(ctx context.Context, f Filter) ([]Record, error)
}

// MarkListener is notified after a record has been appended.
type MarkListener interface {
	RecordMarked(ctx context.Context, r Record)
}

// MarkListenerFunc adapts a function to MarkListener.
type MarkListenerFunc func(ctx context.Context, r Record)

// RecordMarked calls f(ctx, r).
func (f MarkListenerFunc) RecordMarked(ctx context.Context, r Record) { f(ctx, r) }
