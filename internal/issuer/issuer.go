// Package issuer turns an attendance session into the content students scan.
package issuer

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"qrattend/internal/attendance"
)

// DefaultImageSize is the PNG edge length in pixels.
const DefaultImageSize = 256

// Payload is the content encoded into a session's QR code.
type Payload struct {
	Code        string    `json:"sessionCode"`
	Subject     string    `json:"subject"`
	TeacherID   string    `json:"teacherId"`
	TeacherName string    `json:"teacherName"`
	SessionID   string    `json:"sessionId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Issue builds the payload for a session. It only reads the session.
func Issue(s attendance.Session) Payload {
	return Payload{
		Code:        s.Code,
		Subject:     s.Subject,
		TeacherID:   s.TeacherID,
		TeacherName: s.TeacherName,
		SessionID:   s.ID,
		ExpiresAt:   s.ExpiresAt.UTC(),
	}
}

// String returns the JSON form of the payload. Field order is fixed by the
// struct, so equal payloads encode to equal strings.
func (p Payload) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		// only strings and a time; cannot fail
		panic(err)
	}
	return string(b)
}

// PNG renders the payload as a QR code image.
func (p Payload) PNG(size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(p.String(), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// DataURL renders the QR image as a base64 data URL for direct use in an <img>.
func (p Payload) DataURL(size int) (string, error) {
	png, err := p.PNG(size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// ErrMalformed is returned by Parse for input that is neither a payload nor a bare code.
var ErrMalformed = errors.New("malformed session payload")

// Parse accepts what a student device submits: the scanned JSON payload or a
// bare code typed by hand. It returns the session code.
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMalformed
	}
	if !strings.HasPrefix(raw, "{") {
		if strings.ContainsAny(raw, " \t\r\n") {
			return "", ErrMalformed
		}
		return strings.ToUpper(raw), nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Code == "" {
		return "", ErrMalformed
	}
	return p.Code, nil
}
