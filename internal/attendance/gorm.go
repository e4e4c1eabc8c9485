package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// sessionRow is the gorm model behind GormStore sessions.
type sessionRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Code         string    `gorm:"size:16;not null;index"`
	TeacherID    string    `gorm:"not null;index:idx_sessions_teacher"`
	TeacherName  string    `gorm:"not null;default:''"`
	Subject      string    `gorm:"not null"`
	Latitude     float64   `gorm:"not null"`
	Longitude    float64   `gorm:"not null"`
	RadiusMeters float64   `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_sessions_teacher"`
	ExpiresAt    time.Time `gorm:"not null"`
	Active       bool      `gorm:"not null"`
}

func (sessionRow) TableName() string { return "attendance_sessions" }

func (r sessionRow) session() Session {
	return Session{
		ID:           r.ID,
		Code:         r.Code,
		TeacherID:    r.TeacherID,
		TeacherName:  r.TeacherName,
		Subject:      r.Subject,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		RadiusMeters: r.RadiusMeters,
		CreatedAt:    r.CreatedAt.UTC(),
		ExpiresAt:    r.ExpiresAt.UTC(),
		Active:       r.Active,
	}
}

// recordRow is the gorm model behind GormStore records. The composite
// unique index is the ledger's enforcement point.
type recordRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	SessionID   string    `gorm:"size:36;index"`
	StudentID   string    `gorm:"not null;uniqueIndex:idx_records_student_subject_day,priority:1"`
	StudentName string    `gorm:"not null;default:''"`
	RollNumber  string    `gorm:"not null;default:''"`
	Subject     string    `gorm:"not null;uniqueIndex:idx_records_student_subject_day,priority:2;index:idx_records_subject_day"`
	TeacherID   string    `gorm:"not null;index"`
	TeacherName string    `gorm:"not null;default:''"`
	Status      string    `gorm:"not null;default:'present'"`
	Latitude    float64   `gorm:"not null"`
	Longitude   float64   `gorm:"not null"`
	Day         string    `gorm:"size:10;not null;uniqueIndex:idx_records_student_subject_day,priority:3;index:idx_records_subject_day"`
	MarkedAt    time.Time `gorm:"not null;index"`
}

func (recordRow) TableName() string { return "attendance_records" }

func newRecordRow(r Record) recordRow {
	return recordRow{
		ID:          r.ID,
		SessionID:   r.SessionID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		RollNumber:  r.RollNumber,
		Subject:     r.Subject,
		TeacherID:   r.TeacherID,
		TeacherName: r.TeacherName,
		Status:      r.Status,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Day:         r.Date,
		MarkedAt:    r.MarkedAt.UTC(),
	}
}

func (r recordRow) record() Record {
	return Record{
		ID:          r.ID,
		SessionID:   r.SessionID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		RollNumber:  r.RollNumber,
		Subject:     r.Subject,
		TeacherID:   r.TeacherID,
		TeacherName: r.TeacherName,
		Status:      r.Status,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Date:        r.Day,
		MarkedAt:    r.MarkedAt.UTC(),
	}
}

// GormStore implements SessionStore and Ledger on top of gorm, used with the
// pure-Go SQLite driver for single-node deployments.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates/updates the schema.
func (g *GormStore) Migrate() error {
	if err := g.db.AutoMigrate(&sessionRow{}, &recordRow{}); err != nil {
		return err
	}
	// Only active sessions compete for a code.
	return g.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_code ON attendance_sessions (code) WHERE active`).Error
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

// Create inserts a session.
func (g *GormStore) Create(ctx context.Context, s Session) error {
	row := sessionRow{
		ID:           s.ID,
		Code:         s.Code,
		TeacherID:    s.TeacherID,
		TeacherName:  s.TeacherName,
		Subject:      s.Subject,
		Latitude:     s.Latitude,
		Longitude:    s.Longitude,
		RadiusMeters: s.RadiusMeters,
		CreatedAt:    s.CreatedAt.UTC(),
		ExpiresAt:    s.ExpiresAt.UTC(),
		Active:       s.Active,
	}
	err := g.db.WithContext(ctx).Create(&row).Error
	if isDuplicate(err) {
		return ErrCodeTaken
	}
	return err
}

func (g *GormStore) first(ctx context.Context, query string, args ...any) (Session, error) {
	var row sessionRow
	err := g.db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return row.session(), nil
}

// FindActiveByCode returns the active session holding code.
func (g *GormStore) FindActiveByCode(ctx context.Context, code string) (Session, error) {
	return g.first(ctx, "code = ? AND active = ?", code, true)
}

// Get returns a session by id.
func (g *GormStore) Get(ctx context.Context, id string) (Session, error) {
	return g.first(ctx, "id = ?", id)
}

// Deactivate clears the active flag; repeating it is harmless.
func (g *GormStore) Deactivate(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListActiveByTeacher returns open sessions, newest first.
func (g *GormStore) ListActiveByTeacher(ctx context.Context, teacherID string, now time.Time) ([]Session, error) {
	var rows []sessionRow
	err := g.db.WithContext(ctx).
		Where("teacher_id = ? AND active = ? AND expires_at >= ?", teacherID, true, now.UTC()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.session())
	}
	return out, nil
}

// Exists checks for a record with the same student, subject and day.
func (g *GormStore) Exists(ctx context.Context, studentID, subject, date string) (bool, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&recordRow{}).
		Where("student_id = ? AND subject = ? AND day = ?", studentID, subject, date).
		Count(&n).Error
	return n > 0, err
}

// Append inserts a record; the unique index rejects a second one for the key.
func (g *GormStore) Append(ctx context.Context, r Record) (Record, error) {
	row := newRecordRow(r)
	err := g.db.WithContext(ctx).Create(&row).Error
	if isDuplicate(err) {
		return Record{}, ErrDuplicateKey
	}
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// Query returns matching records, newest first with ties broken by id.
func (g *GormStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	q := g.db.WithContext(ctx).Model(&recordRow{})
	if f.StudentID != "" {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	if f.TeacherID != "" {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if f.From != "" {
		q = q.Where("day >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("day <= ?", f.To)
	}
	if f.After != nil {
		at := f.After.MarkedAt.UTC()
		q = q.Where("(marked_at < ? OR (marked_at = ? AND id < ?))", at, at, f.After.ID)
	}
	var rows []recordRow
	if err := q.Order("marked_at DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}
