package issuer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"qrattend/internal/attendance"
)

func testSession() attendance.Session {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return attendance.Session{
		ID:           "7c7f0f5e-4a53-4b7d-9d55-3a8a2c1f0b11",
		Code:         "K7QW2MZP",
		TeacherID:    "t-1",
		TeacherName:  "Dr. Rao",
		Subject:      "Math",
		Latitude:     12.9716,
		Longitude:    77.5946,
		RadiusMeters: 100,
		CreatedAt:    created,
		ExpiresAt:    created.Add(15 * time.Minute),
		Active:       true,
	}
}

func TestIssueIsDeterministic(t *testing.T) {
	s := testSession()
	a, b := Issue(s).String(), Issue(s).String()
	if a != b {
		t.Fatalf("payloads differ:\n%s\n%s", a, b)
	}
	want := `{"sessionCode":"K7QW2MZP","subject":"Math","teacherId":"t-1","teacherName":"Dr. Rao","sessionId":"7c7f0f5e-4a53-4b7d-9d55-3a8a2c1f0b11","expiresAt":"2026-03-02T09:15:00Z"}`
	if a != want {
		t.Fatalf("payload\n got %s\nwant %s", a, want)
	}
}

func TestIssueIgnoresMutableState(t *testing.T) {
	s := testSession()
	closed := s
	closed.Active = false
	if Issue(s).String() != Issue(closed).String() {
		t.Fatal("payload depends on active flag")
	}
}

func TestParse(t *testing.T) {
	p := Issue(testSession())
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: p.String(), want: "K7QW2MZP"},
		{in: "  k7qw2mzp ", want: "K7QW2MZP"},
		{in: "", err: true},
		{in: "two words", err: true},
		{in: "{not json", err: true},
		{in: `{"subject":"Math"}`, err: true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.err {
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Parse(%q) error = %v, want ErrMalformed", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("Parse(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestPNGAndDataURL(t *testing.T) {
	p := Issue(testSession())
	png, err := p.PNG(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("not a PNG")
	}
	url, err := p.DataURL(128)
	if err != nil {
		t.Fatal(err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("data url prefix: %.40s", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil || !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatalf("data url body: %v", err)
	}
}
