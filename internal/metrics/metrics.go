package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"qrattend/internal/attendance"
)

// Result labels for verification outcomes.
const (
	ResultMarked       = "marked"
	ResultNotFound     = "session_not_found"
	ResultExpired      = "session_expired"
	ResultOutOfRange   = "out_of_range"
	ResultDuplicate    = "already_marked"
	ResultInvalid      = "invalid_request"
	ResultUnavailable  = "store_unavailable"
	ResultOtherFailure = "error"
)

// Recorder holds the service's collectors.
type Recorder struct {
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	Verifications   *prometheus.CounterVec
	VerifyDuration  prometheus.Histogram
	Distance        prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "sessions_created_total",
			Help:      "Attendance sessions opened.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "sessions_closed_total",
			Help:      "Attendance sessions closed by their owner.",
		}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "verifications_total",
			Help:      "Scan verifications by outcome.",
		}, []string{"result"}),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "verify_duration_seconds",
			Help:      "Time spent verifying a scan.",
			Buckets:   prometheus.DefBuckets,
		}),
		Distance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "rejected_distance_meters",
			Help:      "Distance from the class location of out-of-range scans.",
			Buckets:   []float64{50, 100, 200, 500, 1000, 5000, 20000},
		}),
	}
	reg.MustRegister(r.SessionsCreated, r.SessionsClosed, r.Verifications, r.VerifyDuration, r.Distance)
	return r
}

// Result maps a Verify error to its label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultMarked
	case errors.Is(err, attendance.ErrSessionNotFound):
		return ResultNotFound
	case errors.Is(err, attendance.ErrSessionExpired):
		return ResultExpired
	case errors.Is(err, attendance.ErrOutOfRange):
		return ResultOutOfRange
	case errors.Is(err, attendance.ErrAlreadyMarked):
		return ResultDuplicate
	case errors.Is(err, attendance.ErrInvalidRequest):
		return ResultInvalid
	case errors.Is(err, attendance.ErrStoreUnavailable):
		return ResultUnavailable
	}
	return ResultOtherFailure
}

// ObserveVerify records one verification. A nil Recorder is a no-op.
func (r *Recorder) ObserveVerify(err error, took time.Duration) {
	if r == nil {
		return
	}
	r.Verifications.WithLabelValues(Result(err)).Inc()
	r.VerifyDuration.Observe(took.Seconds())
	var oor *attendance.OutOfRangeError
	if errors.As(err, &oor) {
		r.Distance.Observe(oor.DistanceMeters)
	}
}

// SessionCreated counts an opened session.
func (r *Recorder) SessionCreated() {
	if r != nil {
		r.SessionsCreated.Inc()
	}
}

// SessionClosed counts a closed session.
func (r *Recorder) SessionClosed() {
	if r != nil {
		r.SessionsClosed.Inc()
	}
}
