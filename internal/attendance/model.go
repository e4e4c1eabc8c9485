package attendance

import (
	"math"
	"strings"
	"time"
)

// DateLayout is the layout of Record.Date and Filter date bounds.
const DateLayout = "2006-01-02"

// Status of an attendance record.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Session is a time- and location-bounded window in which a subject's
// attendance may be marked.
type Session struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	TeacherID    string    `json:"teacher_id"`
	TeacherName  string    `json:"teacher_name"`
	Subject      string    `json:"subject"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	RadiusMeters float64   `json:"radius_meters"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Active       bool      `json:"active"`
}

// Expired reports whether now is strictly past the session's expiry.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Open reports whether the session can still accept a scan at now.
func (s Session) Open(now time.Time) bool {
	return s.Active && !s.Expired(now)
}

// Record is a single attendance entry. Identity fields are snapshots taken
// when the record was marked.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	RollNumber  string    `json:"roll_number"`
	Subject     string    `json:"subject"`
	TeacherID   string    `json:"teacher_id"`
	TeacherName string    `json:"teacher_name"`
	Status      string    `json:"status"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Date        string    `json:"date"`
	MarkedAt    time.Time `json:"marked_at"`
}

// CreateSessionRequest opens a new session. DurationMinutes of zero selects
// the service default.
type CreateSessionRequest struct {
	TeacherID       string
	TeacherName     string
	Subject         string
	Latitude        float64
	Longitude       float64
	DurationMinutes int
}

func (r CreateSessionRequest) validate() error {
	switch {
	case strings.TrimSpace(r.TeacherID) == "":
		return invalid("teacher id required")
	case strings.TrimSpace(r.Subject) == "":
		return invalid("subject required")
	case r.DurationMinutes < 0:
		return invalid("duration must not be negative")
	}
	return nil
}

// VerifyRequest is a student's scan of a session code.
type VerifyRequest struct {
	Code        string
	StudentID   string
	StudentName string
	RollNumber  string
	Latitude    float64
	Longitude   float64
}

func (r VerifyRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Code) == "":
		return invalid("session code required")
	case strings.TrimSpace(r.StudentID) == "":
		return invalid("student id required")
	case !finite(r.Latitude) || !finite(r.Longitude):
		return invalid("coordinates must be finite")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Filter selects ledger records. Empty fields match everything; From and To
// are inclusive days in DateLayout.
type Filter struct {
	StudentID string
	Subject   string
	TeacherID string
	From      string
	To        string
	Limit     int
	Offset    int
	// After, when set, keeps only records ordered after it (older, or the
	// same MarkedAt with a smaller ID). Used for keyset paging.
	After *Cursor
}

// Cursor is a position in the ledger's (MarkedAt DESC, ID DESC) order.
type Cursor struct {
	MarkedAt time.Time
	ID       string
}

// CursorOf returns the position of r.
func CursorOf(r Record) *Cursor {
	return &Cursor{MarkedAt: r.MarkedAt, ID: r.ID}
}

// newer reports whether a sorts before b in ledger order.
func newer(a, b Record) bool {
	if !a.MarkedAt.Equal(b.MarkedAt) {
		return a.MarkedAt.After(b.MarkedAt)
	}
	return a.ID > b.ID
}

// DefaultQueryLimit caps unbounded ledger queries.
const DefaultQueryLimit = 50

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f Filter) match(r Record) bool {
	if f.StudentID != "" && r.StudentID != f.StudentID {
		return false
	}
	if f.Subject != "" && r.Subject != f.Subject {
		return false
	}
	if f.TeacherID != "" && r.TeacherID != f.TeacherID {
		return false
	}
	if f.From != "" && r.Date < f.From {
		return false
	}
	if f.To != "" && r.Date > f.To {
		return false
	}
	if f.After != nil && !newer(Record{MarkedAt: f.After.MarkedAt, ID: f.After.ID}, r) {
		return false
	}
	return true
}
