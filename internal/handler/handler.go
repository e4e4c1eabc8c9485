// Package handler exposes the attendance service over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/live"
	"qrattend/internal/metrics"
	"qrattend/internal/report"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options carries the optional collaborators of a Handler.
type Options struct {
	Hub     *live.Hub
	Tally   report.Tallier
	Metrics *metrics.Recorder
	Checks  map[string]HealthCheck
}

// Handler serves the attendance API.
type Handler struct {
	svc     *attendance.Service
	hub     *live.Hub
	tally   report.Tallier
	metrics *metrics.Recorder
	checks  map[string]HealthCheck
}

// New creates a handler around svc.
func New(svc *attendance.Service, opts Options) *Handler {
	return &Handler{
		svc:     svc,
		hub:     opts.Hub,
		tally:   opts.Tally,
		metrics: opts.Metrics,
		checks:  opts.Checks,
	}
}

// Register mounts /healthz and the authenticated /v1 routes on r.
func (h *Handler) Register(r gin.IRouter, signingKey, issuer string) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1", auth.Bearer(signingKey, issuer))
	staff := auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin)
	student := auth.RequireRole(auth.RoleStudent)

	sessions := v1.Group("/sessions", staff)
	sessions.POST("", h.createSession)
	sessions.GET("", h.listSessions)
	sessions.DELETE("/:id", h.closeSession)
	sessions.GET("/:id/qr.png", h.sessionQR)
	sessions.GET("/:id/live", h.sessionLive)

	v1.POST("/attendance/mark", student, h.mark)
	v1.GET("/attendance/me", student, h.myAttendance)

	reports := v1.Group("/reports", staff)
	reports.GET("/records", h.records)
	reports.GET("/subjects", h.subjects)
	reports.GET("/students", h.students)
	reports.GET("/summary", h.summary)
	reports.GET("/defaulters", h.defaulters)
	reports.GET("/export.xlsx", h.export)
	reports.GET("/tally", h.dailyTally)
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// errorBody writes {"error": code, "message": text}.
func errorBody(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	errorBody(c, http.StatusBadRequest, "InvalidRequest", msg)
}

// fail maps service errors to HTTP responses.
func fail(c *gin.Context, err error) {
	var oor *attendance.OutOfRangeError
	switch {
	case errors.As(err, &oor):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":           "OutOfRange",
			"message":         oor.Error(),
			"distance_meters": oor.DistanceMeters,
			"allowed_meters":  oor.AllowedMeters,
		})
	case errors.Is(err, attendance.ErrSessionNotFound):
		errorBody(c, http.StatusNotFound, "SessionNotFound", "invalid or inactive session code")
	case errors.Is(err, attendance.ErrSessionExpired):
		errorBody(c, http.StatusGone, "SessionExpired", "session has expired")
	case errors.Is(err, attendance.ErrAlreadyMarked):
		errorBody(c, http.StatusConflict, "AlreadyMarked", err.Error())
	case errors.Is(err, attendance.ErrInvalidRequest):
		badRequest(c, err.Error())
	case errors.Is(err, attendance.ErrStoreUnavailable), errors.Is(err, attendance.ErrCodeTaken):
		errorBody(c, http.StatusServiceUnavailable, "StoreUnavailable", "attendance store unavailable, try again")
	default:
		errorBody(c, http.StatusInternalServerError, "Internal", "internal error")
	}
}

func forbidden(c *gin.Context) {
	errorBody(c, http.StatusForbidden, "Forbidden", "not allowed for this session")
}

// ownedSession loads the :id session and checks the caller may manage it.
func (h *Handler) ownedSession(c *gin.Context) (attendance.Session, bool) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return attendance.Session{}, false
	}
	id, _ := auth.FromContext(c)
	if id.Role != auth.RoleAdmin && sess.TeacherID != id.ID {
		forbidden(c)
		return attendance.Session{}, false
	}
	return sess, true
}
