package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"qrattend/internal/attendance"
)

const (
	recordsSheet  = "Attendance"
	subjectsSheet = "Subjects"
	timeLayout    = "2006-01-02 15:04:05"
)

var recordHeader = []interface{}{
	"Date", "Subject", "Student ID", "Student Name", "Roll Number",
	"Teacher", "Status", "Marked At (UTC)", "Latitude", "Longitude",
}

var subjectHeader = []interface{}{"Subject", "Total", "Present", "Percentage"}

// WriteXLSX writes records and a per-subject summary as a workbook.
func WriteXLSX(w io.Writer, records []attendance.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(recordsSheet, "A1", &recordHeader); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.Date, r.Subject, r.StudentID, r.StudentName, r.RollNumber,
			r.TeacherName, r.Status, r.MarkedAt.UTC().Format(timeLayout), r.Latitude, r.Longitude,
		}
		if err := f.SetSheetRow(recordsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(recordsSheet, "A", "H", 18); err != nil {
		return err
	}

	if _, err := f.NewSheet(subjectsSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(subjectsSheet, "A1", &subjectHeader); err != nil {
		return err
	}
	for i, s := range BySubject(records) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{s.Subject, s.Total, s.Present, s.Percentage}
		if err := f.SetSheetRow(subjectsSheet, cell, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}
