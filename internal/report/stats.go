// Package report derives read-only views over the attendance ledger:
// per-student and per-subject statistics, spreadsheet export and daily
// tallies fed by mark events.
package report

import (
	"context"
	"math"
	"sort"

	"qrattend/internal/attendance"
)

// DefaulterThreshold is the attendance percentage below which a student is
// flagged.
const DefaulterThreshold = 75.0

const pageSize = 500

// Stats summarises a set of records.
type Stats struct {
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
}

// SubjectStats is Stats for one subject.
type SubjectStats struct {
	Subject string `json:"subject"`
	Stats
}

// StudentStats is Stats for one student.
type StudentStats struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	RollNumber  string `json:"roll_number"`
	Stats
}

func (s *Stats) add(r attendance.Record) {
	s.Total++
	if r.Status == attendance.StatusPresent {
		s.Present++
	}
}

func (s *Stats) finish() {
	if s.Total == 0 {
		s.Percentage = 0
		return
	}
	s.Percentage = math.Round(float64(s.Present)/float64(s.Total)*10000) / 100
}

// Summarize computes totals over records.
func Summarize(records []attendance.Record) Stats {
	var s Stats
	for _, r := range records {
		s.add(r)
	}
	s.finish()
	return s
}

// BySubject groups records per subject, sorted by subject name.
func BySubject(records []attendance.Record) []SubjectStats {
	idx := map[string]*SubjectStats{}
	for _, r := range records {
		s, ok := idx[r.Subject]
		if !ok {
			s = &SubjectStats{Subject: r.Subject}
			idx[r.Subject] = s
		}
		s.add(r)
	}
	out := make([]SubjectStats, 0, len(idx))
	for _, s := range idx {
		s.finish()
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// ByStudent groups records per student, sorted by roll number then id.
// Names are taken from the most recent record seen first.
func ByStudent(records []attendance.Record) []StudentStats {
	idx := map[string]*StudentStats{}
	for _, r := range records {
		s, ok := idx[r.StudentID]
		if !ok {
			s = &StudentStats{StudentID: r.StudentID, StudentName: r.StudentName, RollNumber: r.RollNumber}
			idx[r.StudentID] = s
		}
		s.add(r)
	}
	out := make([]StudentStats, 0, len(idx))
	for _, s := range idx {
		s.finish()
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RollNumber != out[j].RollNumber {
			return out[i].RollNumber < out[j].RollNumber
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// Defaulters returns students under threshold percent, lowest first.
func Defaulters(students []StudentStats, threshold float64) []StudentStats {
	var out []StudentStats
	for _, s := range students {
		if s.Total > 0 && s.Percentage < threshold {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percentage < out[j].Percentage })
	return out
}

// RecentLimit is how many records a Dashboard lists.
const RecentLimit = 10

// Dashboard is the at-a-glance view of the ledger.
type Dashboard struct {
	Date           string              `json:"date"`
	TodayCount     int                 `json:"today_count"`
	ActiveStudents int                 `json:"active_students"`
	ActiveTeachers int                 `json:"active_teachers"`
	Overall        Stats               `json:"overall"`
	Recent         []attendance.Record `json:"recent"`
}

// Summary builds a Dashboard for today from records in ledger order
// (newest first). Students and teachers are counted from the records.
func Summary(records []attendance.Record, today string) Dashboard {
	d := Dashboard{Date: today, Overall: Summarize(records), Recent: []attendance.Record{}}
	students := map[string]struct{}{}
	teachers := map[string]struct{}{}
	for _, r := range records {
		students[r.StudentID] = struct{}{}
		if r.TeacherID != "" {
			teachers[r.TeacherID] = struct{}{}
		}
		if r.Date == today {
			d.TodayCount++
		}
	}
	d.ActiveStudents = len(students)
	d.ActiveTeachers = len(teachers)
	n := min(len(records), RecentLimit)
	d.Recent = append(d.Recent, records[:n]...)
	return d
}

// Source is the read side of the ledger; *attendance.Service satisfies it.
type Source interface {
	Records(ctx context.Context, f attendance.Filter) ([]attendance.Record, error)
}

// Collect pages through every record matching f, ignoring f's paging. Pages
// continue from the last record seen, so marks appended meanwhile cannot
// shift later pages.
func Collect(ctx context.Context, src Source, f attendance.Filter) ([]attendance.Record, error) {
	f.Limit = pageSize
	f.Offset = 0
	f.After = nil
	var out []attendance.Record
	for {
		page, err := src.Records(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		f.After = attendance.CursorOf(page[len(page)-1])
	}
}
