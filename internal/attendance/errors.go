package attendance

import (
	"errors"
	"fmt"
)

// Verification outcomes. Every one of them is terminal for the attempt.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrOutOfRange      = errors.New("outside session radius")
	ErrAlreadyMarked   = errors.New("attendance already marked for this subject today")
)

var (
	// ErrDuplicateKey is returned by Ledger.Append when a record for the same
	// student, subject and day exists. Service maps it to ErrAlreadyMarked.
	ErrDuplicateKey = errors.New("duplicate attendance key")
	// ErrCodeTaken is returned by SessionStore.Create when the code belongs to
	// another active session.
	ErrCodeTaken = errors.New("session code already in use")
	// ErrStoreUnavailable wraps infrastructure failures. It is never retried here.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidRequest   = errors.New("invalid request")
)

// OutOfRangeError carries the measured and allowed distance of a rejected scan.
type OutOfRangeError struct {
	DistanceMeters float64
	AllowedMeters  float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("you are %.0fm away, must be within %.0fm of the class location", e.DistanceMeters, e.AllowedMeters)
}

// Is makes errors.Is(err, ErrOutOfRange) hold.
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
