package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/issuer"
	"qrattend/internal/live"
)

// Duration bounds accepted from clients, in minutes.
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 180
)

const (
	minQRSize = 64
	maxQRSize = 1024
)

type createSessionBody struct {
	Subject         string   `json:"subject" binding:"required"`
	Latitude        *float64 `json:"latitude" binding:"required"`
	Longitude       *float64 `json:"longitude" binding:"required"`
	DurationMinutes *int     `json:"duration_minutes"`
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (h *Handler) createSession(c *gin.Context) {
	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validCoordinates(*body.Latitude, *body.Longitude) {
		badRequest(c, "latitude or longitude out of range")
		return
	}
	minutes := 0
	if body.DurationMinutes != nil {
		minutes = *body.DurationMinutes
		if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
			badRequest(c, "duration_minutes must be between 1 and 180")
			return
		}
	}

	id, _ := auth.FromContext(c)
	sess, err := h.svc.CreateSession(c.Request.Context(), attendance.CreateSessionRequest{
		TeacherID:       id.ID,
		TeacherName:     id.Name,
		Subject:         body.Subject,
		Latitude:        *body.Latitude,
		Longitude:       *body.Longitude,
		DurationMinutes: minutes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	h.metrics.SessionCreated()

	payload := issuer.Issue(sess)
	qr, err := payload.DataURL(issuer.DefaultImageSize)
	if err != nil {
		log.Printf("render qr for session %s: %v", sess.ID, err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"session": sess,
		"payload": payload,
		"qr_code": qr,
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	id, _ := auth.FromContext(c)
	teacherID := id.ID
	if q := c.Query("teacher_id"); q != "" && id.Role == auth.RoleAdmin {
		teacherID = q
	}
	list, err := h.svc.ActiveSessions(c.Request.Context(), teacherID)
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (h *Handler) closeSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.svc.CloseSession(c.Request.Context(), sess.ID); err != nil {
		fail(c, err)
		return
	}
	if sess.Active {
		h.metrics.SessionClosed()
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sessionQR(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	size := issuer.DefaultImageSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			badRequest(c, "size must be between 64 and 1024")
			return
		}
		size = n
	}
	png, err := issuer.Issue(sess).PNG(size)
	if err != nil {
		log.Printf("render qr for session %s: %v", sess.ID, err)
		errorBody(c, http.StatusInternalServerError, "Internal", "could not render code")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) sessionLive(c *gin.Context) {
	if h.hub == nil {
		errorBody(c, http.StatusServiceUnavailable, "LiveUnavailable", "live feed disabled")
		return
	}
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	live.Serve(h.hub, sess.ID, c.Writer, c.Request)
}
