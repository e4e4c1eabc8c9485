package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists sessions and attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS attendance_sessions (
	id            UUID PRIMARY KEY,
	code          TEXT NOT NULL,
	teacher_id    TEXT NOT NULL,
	teacher_name  TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL,
	latitude      DOUBLE PRECISION NOT NULL,
	longitude     DOUBLE PRECISION NOT NULL,
	radius_meters DOUBLE PRECISION NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE UNIQUE INDEX IF NOT EXISTS attendance_sessions_active_code
	ON attendance_sessions (code) WHERE active;
CREATE INDEX IF NOT EXISTS attendance_sessions_teacher
	ON attendance_sessions (teacher_id, created_at DESC) WHERE active;

CREATE TABLE IF NOT EXISTS attendance_records (
	id           UUID PRIMARY KEY,
	session_id   UUID,
	student_id   TEXT NOT NULL,
	student_name TEXT NOT NULL DEFAULT '',
	roll_number  TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL,
	teacher_id   TEXT NOT NULL,
	teacher_name TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'present' CHECK (status IN ('present', 'absent')),
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	day          DATE NOT NULL,
	marked_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT attendance_records_student_subject_day UNIQUE (student_id, subject, day)
);

CREATE INDEX IF NOT EXISTS attendance_records_subject_day ON attendance_records (subject, day);
CREATE INDEX IF NOT EXISTS attendance_records_day ON attendance_records (day);
`

// Migrate creates the tables and indexes if they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, pgSchema)
	return err
}

// isUniqueViolation reports a Postgres unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const sessionColumns = `id, code, teacher_id, teacher_name, subject, latitude, longitude, radius_meters, created_at, expires_at, active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Code, &s.TeacherID, &s.TeacherName, &s.Subject, &s.Latitude, &s.Longitude,
		&s.RadiusMeters, &s.CreatedAt, &s.ExpiresAt, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// Create inserts a session. The partial unique index on active codes turns a
// collision into ErrCodeTaken.
func (r *Repository) Create(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, s.ID, s.Code, s.TeacherID, s.TeacherName, s.Subject, s.Latitude, s.Longitude,
		s.RadiusMeters, s.CreatedAt, s.ExpiresAt, s.Active)
	if isUniqueViolation(err) {
		return ErrCodeTaken
	}
	return err
}

// FindActiveByCode returns the active session holding code.
func (r *Repository) FindActiveByCode(ctx context.Context, code string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE code = $1 AND active
	`, code)
	return scanSession(row)
}

// Get returns a single session by id.
func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Deactivate clears the active flag. The update matches the row whether or
// not it is already inactive, so only an unknown id reports zero rows.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE attendance_sessions SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListActiveByTeacher returns open sessions, newest first.
func (r *Repository) ListActiveByTeacher(ctx context.Context, teacherID string, now time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE teacher_id = $1 AND active AND expires_at >= $2
		ORDER BY created_at DESC
	`, teacherID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Exists checks for a record with the same student, subject and day.
func (r *Repository) Exists(ctx context.Context, studentID, subject, date string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE student_id = $1 AND subject = $2 AND day = $3::date
		)
	`, studentID, subject, date).Scan(&exists)
	return exists, err
}

// Append writes a record. The table's unique constraint is what makes
// concurrent appends for one key safe; a violation becomes ErrDuplicateKey.
func (r *Repository) Append(ctx context.Context, rec Record) (Record, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, student_name, roll_number, subject,
			teacher_id, teacher_name, status, latitude, longitude, day, marked_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::date, $13)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.StudentName, rec.RollNumber, rec.Subject,
		rec.TeacherID, rec.TeacherName, rec.Status, rec.Latitude, rec.Longitude, rec.Date, rec.MarkedAt)
	if isUniqueViolation(err) {
		return Record{}, ErrDuplicateKey
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Query returns records with basic filters, newest first with ties broken by id.
func (r *Repository) Query(ctx context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	query := `SELECT id, COALESCE(session_id::text, ''), student_id, student_name, roll_number, subject,
		teacher_id, teacher_name, status, latitude, longitude, day, marked_at FROM attendance_records`
	args := []any{}
	clauses := []string{}
	add := func(clause string, vs ...any) {
		for _, v := range vs {
			args = append(args, v)
			clause = strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1)
		}
		clauses = append(clauses, clause)
	}
	if f.StudentID != "" {
		add("student_id = ?", f.StudentID)
	}
	if f.Subject != "" {
		add("subject = ?", f.Subject)
	}
	if f.TeacherID != "" {
		add("teacher_id = ?", f.TeacherID)
	}
	if f.From != "" {
		add("day >= ?::date", f.From)
	}
	if f.To != "" {
		add("day <= ?::date", f.To)
	}
	if f.After != nil {
		add("(marked_at, id) < (?, ?::uuid)", f.After.MarkedAt, f.After.ID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY marked_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		var day time.Time
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.StudentName, &rec.RollNumber, &rec.Subject,
			&rec.TeacherID, &rec.TeacherName, &rec.Status, &rec.Latitude, &rec.Longitude, &day, &rec.MarkedAt); err != nil {
			return nil, err
		}
		rec.Date = day.Format(DateLayout)
		res = append(res, rec)
	}
	return res, rows.Err()
}
