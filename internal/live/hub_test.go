package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"qrattend/internal/attendance"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Serve(hub, r.URL.Query().Get("session"), w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMarksReachOnlyTheirSession(t *testing.T) {
	hub, srv := startHub(t)
	mine := dial(t, srv, "sess-1")
	other := dial(t, srv, "sess-2")
	waitFor(t, func() bool { return hub.Subscribers("sess-1") == 1 && hub.Subscribers("sess-2") == 1 })

	hub.RecordMarked(context.Background(), attendance.Record{ID: "r-1", SessionID: "sess-1", StudentID: "s-1"})

	mine.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := mine.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt struct {
		Type string            `json:"type"`
		Data attendance.Record `json:"data"`
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != EventMarked || evt.Data.ID != "r-1" {
		t.Fatalf("event = %+v", evt)
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("subscriber of another session received the mark")
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "sess-1")
	waitFor(t, func() bool { return hub.Subscribers("sess-1") == 1 })
	conn.Close()
	waitFor(t, func() bool { return hub.Subscribers("sess-1") == 0 })
}
