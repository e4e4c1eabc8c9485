package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
)

func TestSerializeRoundTrip(t *testing.T) {
	cases := []Message{
		{Type: TypeMarked, Body: []byte(`{"id":"a|b"}`)},
		{Type: "", Body: []byte("x")},
	}
	for _, m := range cases {
		got := deserialize(serialize(m))
		if got.Type != m.Type || string(got.Body) != string(m.Body) {
			t.Fatalf("round trip %q/%q -> %q/%q", m.Type, m.Body, got.Type, got.Body)
		}
	}
	if got := deserialize("legacy"); got.Type != "" || string(got.Body) != "legacy" {
		t.Fatalf("untyped payload = %+v", got)
	}
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, typ := range []string{"a", "b"} {
		if err := q.Publish(ctx, Message{Type: typ}); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"a", "b"} {
		select {
		case m := <-msgs:
			if m.Type != want {
				t.Fatalf("got %q, want %q", m.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("unexpected message after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed after cancel")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{Type: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, Message{Type: "second"}); err == nil {
		t.Fatal("publish to a full queue should fail once the context is done")
	}
}

func TestMarkPublisher(t *testing.T) {
	q := NewInMemory(1)
	p := NewMarkPublisher(q)
	rec := attendance.Record{
		ID: "r-1", StudentID: "s-1", Subject: "Math", Date: "2026-03-02",
		Status: attendance.StatusPresent, MarkedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// a cancelled request context must not drop the event
	p.RecordMarked(ctx, rec)

	msgs, err := q.Consume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-msgs:
		got, err := DecodeMarked(m)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != rec.ID || got.Subject != rec.Subject || !got.MarkedAt.Equal(rec.MarkedAt) {
			t.Fatalf("decoded %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}

	if _, err := DecodeMarked(Message{Type: "other"}); err == nil {
		t.Fatal("decoded message of another type")
	}
}

func TestRedisQueuePublishConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := NewRedisQueue(client, "")
	q.wait = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, typ := range []string{"a", "b"} {
		if err := q.Publish(ctx, Message{Type: typ, Body: []byte(`{"n":1}`)}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := client.LLen(ctx, "attendance:marks").Result(); n != 2 {
		t.Fatalf("default key holds %d messages", n)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// LPUSH + BRPOP delivers in publish order
	for _, want := range []string{"a", "b"} {
		select {
		case m := <-msgs:
			if m.Type != want || string(m.Body) != `{"n":1}` {
				t.Fatalf("got %q/%s, want %q", m.Type, m.Body, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("unexpected message after cancel")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}
