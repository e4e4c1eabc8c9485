package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/issuer"
	"qrattend/internal/report"
)

// markBody accepts either the bare code or the scanned QR payload.
type markBody struct {
	Code      string   `json:"code"`
	Payload   string   `json:"payload"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (h *Handler) mark(c *gin.Context) {
	var body markBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validCoordinates(*body.Latitude, *body.Longitude) {
		badRequest(c, "latitude or longitude out of range")
		return
	}
	raw := body.Code
	if raw == "" {
		raw = body.Payload
	}
	code, err := issuer.Parse(raw)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	id, _ := auth.FromContext(c)
	start := time.Now()
	rec, err := h.svc.Verify(c.Request.Context(), attendance.VerifyRequest{
		Code:        code,
		StudentID:   id.ID,
		StudentName: id.Name,
		RollNumber:  id.RollNumber,
		Latitude:    *body.Latitude,
		Longitude:   *body.Longitude,
	})
	h.metrics.ObserveVerify(err, time.Since(start))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

func (h *Handler) myAttendance(c *gin.Context) {
	f, ok := filterFromQuery(c)
	if !ok {
		return
	}
	id, _ := auth.FromContext(c)
	f.StudentID = id.ID
	f.TeacherID = ""
	recs, err := report.Collect(c.Request.Context(), h.svc, f)
	if err != nil {
		fail(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"records":  recs,
		"stats":    report.Summarize(recs),
		"subjects": report.BySubject(recs),
	})
}
