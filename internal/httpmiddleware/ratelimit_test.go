package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucketRefills(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(3, 60)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d rejected within capacity", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Fatal("request over capacity allowed")
	}
	if !l.allow("5.6.7.8") {
		t.Fatal("buckets are not per key")
	}

	now = now.Add(time.Minute)
	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d rejected after refill", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Fatal("refill exceeded capacity")
	}
}

type stubLimiter struct {
	ok  bool
	err error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.ok, s.err }

func TestMiddlewareStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		l    Limiter
		want int
	}{
		{"allowed", stubLimiter{ok: true}, http.StatusOK},
		{"limited", stubLimiter{ok: false}, http.StatusTooManyRequests},
		{"backend down", stubLimiter{err: errors.New("redis down")}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Middleware(tc.l))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestRedisWindowRejectsOverLimit(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2026, 3, 2, 9, 0, 10, 0, time.UTC)
	w := NewRedisWindow(client, 3)
	w.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, err := w.Allow(ctx, "1.2.3.4"); err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	if ok, err := w.Allow(ctx, "1.2.3.4"); err != nil || ok {
		t.Fatalf("request over limit: ok=%v err=%v", ok, err)
	}
	if ok, _ := w.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatal("windows are not per key")
	}
	key := "ratelimit:1.2.3.4:" + strconv.FormatInt(now.Unix()/60, 10)
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 2*time.Minute {
		t.Fatalf("window ttl = %v", ttl)
	}

	now = now.Add(time.Minute)
	if ok, err := w.Allow(ctx, "1.2.3.4"); err != nil || !ok {
		t.Fatalf("next window: ok=%v err=%v", ok, err)
	}
}
