package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions and records in process memory. It implements
// both SessionStore and Ledger and suits a single node or tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	codes    map[string]string // active code -> session id

	keys    sync.Map // ledgerKey -> record id
	recMu   sync.RWMutex
	records []Record
}

type ledgerKey struct {
	studentID string
	subject   string
	date      string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		codes:    make(map[string]string),
	}
}

// Create stores a session, claiming its code.
func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.codes[s.Code]; ok {
		if other := m.sessions[id]; other != nil && other.Active {
			return ErrCodeTaken
		}
	}
	cp := s
	m.sessions[s.ID] = &cp
	if s.Active {
		m.codes[s.Code] = s.ID
	}
	return nil
}

// FindActiveByCode returns the active session holding code.
func (m *MemoryStore) FindActiveByCode(_ context.Context, code string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[code]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	s := m.sessions[id]
	if s == nil || !s.Active {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

// Get returns a session by id.
func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

// Deactivate marks a session inactive and releases its code.
func (m *MemoryStore) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Active = false
	if m.codes[s.Code] == id {
		delete(m.codes, s.Code)
	}
	return nil
}

// ListActiveByTeacher returns the teacher's open sessions, newest first.
func (m *MemoryStore) ListActiveByTeacher(_ context.Context, teacherID string, now time.Time) ([]Session, error) {
	m.mu.RLock()
	var out []Session
	for _, s := range m.sessions {
		if s.TeacherID == teacherID && s.Open(now) {
			out = append(out, *s)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Exists reports whether a record for the key has been appended.
func (m *MemoryStore) Exists(_ context.Context, studentID, subject, date string) (bool, error) {
	_, ok := m.keys.Load(ledgerKey{studentID, subject, date})
	return ok, nil
}

// Append claims the record's key and stores it. Claiming is a single
// LoadOrStore, so concurrent appends for one key have exactly one winner.
func (m *MemoryStore) Append(_ context.Context, r Record) (Record, error) {
	key := ledgerKey{r.StudentID, r.Subject, r.Date}
	if _, loaded := m.keys.LoadOrStore(key, r.ID); loaded {
		return Record{}, ErrDuplicateKey
	}
	m.recMu.Lock()
	m.records = append(m.records, r)
	m.recMu.Unlock()
	return r, nil
}

// Query returns matching records, newest first with ties broken by id.
func (m *MemoryStore) Query(_ context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	m.recMu.RLock()
	var out []Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if f.match(m.records[i]) {
			out = append(out, m.records[i])
		}
	}
	m.recMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
