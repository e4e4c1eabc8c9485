package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/report"
)

const maxPageSize = 500

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(attendance.DateLayout, s)
	return err == nil
}

// filterFromQuery reads the common record filters. It writes a 400 and
// returns false on malformed input.
func filterFromQuery(c *gin.Context) (attendance.Filter, bool) {
	f := attendance.Filter{
		StudentID: c.Query("student_id"),
		Subject:   c.Query("subject"),
		TeacherID: c.Query("teacher_id"),
		From:      c.Query("from"),
		To:        c.Query("to"),
	}
	if !validDate(f.From) || !validDate(f.To) {
		badRequest(c, "from and to must be YYYY-MM-DD")
		return f, false
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		badRequest(c, "from must not be after to")
		return f, false
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, name+" must be a non-negative integer")
			return f, false
		}
		*dst = n
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	return f, true
}

func (h *Handler) records(c *gin.Context) {
	f, ok := filterFromQuery(c)
	if !ok {
		return
	}
	recs, err := h.svc.Records(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) collect(c *gin.Context) ([]attendance.Record, bool) {
	f, ok := filterFromQuery(c)
	if !ok {
		return nil, false
	}
	recs, err := report.Collect(c.Request.Context(), h.svc, f)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return recs, true
}

func (h *Handler) subjects(c *gin.Context) {
	recs, ok := h.collect(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": report.BySubject(recs)})
}

func (h *Handler) students(c *gin.Context) {
	recs, ok := h.collect(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": report.ByStudent(recs)})
}

func (h *Handler) summary(c *gin.Context) {
	recs, ok := h.collect(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report.Summary(recs, h.svc.Today()))
}

func (h *Handler) defaulters(c *gin.Context) {
	threshold := report.DefaulterThreshold
	if v := c.Query("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 100 {
			badRequest(c, "threshold must be a percentage")
			return
		}
		threshold = t
	}
	recs, ok := h.collect(c)
	if !ok {
		return
	}
	list := report.Defaulters(report.ByStudent(recs), threshold)
	if list == nil {
		list = []report.StudentStats{}
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "defaulters": list})
}

func (h *Handler) export(c *gin.Context) {
	recs, ok := h.collect(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, recs); err != nil {
		errorBody(c, http.StatusInternalServerError, "Internal", "could not build spreadsheet")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance-`+h.svc.Today()+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) dailyTally(c *gin.Context) {
	if h.tally == nil {
		errorBody(c, http.StatusServiceUnavailable, "TallyUnavailable", "daily tally disabled")
		return
	}
	date := c.Query("date")
	if date == "" {
		date = h.svc.Today()
	}
	if !validDate(date) {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}
	counts, err := h.tally.Counts(c.Request.Context(), date)
	if err != nil {
		errorBody(c, http.StatusServiceUnavailable, "TallyUnavailable", "tally store unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "subjects": counts})
}
