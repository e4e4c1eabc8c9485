package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "attendance:session:" // string: JSON session
	codeKeyPrefix    = "attendance:code:"    // string: session id, present while the session is active
	teacherKeyPrefix = "attendance:teacher:" // sorted set: session ids scored by creation time
)

// releaseCode deletes a code key only if it still points at the session.
var releaseCode = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSessionStore keeps sessions in Redis. Keys outlive ExpiresAt by the
// retention period so a late scan still sees the session and is rejected as
// expired rather than unknown.
type RedisSessionStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisSessionStore creates a store. Retention defaults to 24h.
func NewRedisSessionStore(client *redis.Client, retention time.Duration) *RedisSessionStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisSessionStore{client: client, retention: retention}
}

func sessionKey(id string) string        { return sessionKeyPrefix + id }
func codeKey(code string) string         { return codeKeyPrefix + code }
func teacherKey(teacherID string) string { return teacherKeyPrefix + teacherID }

func (r *RedisSessionStore) ttl(s Session) time.Duration {
	d := time.Until(s.ExpiresAt) + r.retention
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Create claims the code with SETNX, then writes the session.
func (r *RedisSessionStore) Create(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := r.ttl(s)
	ok, err := r.client.SetNX(ctx, codeKey(s.Code), s.ID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeTaken
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, ttl)
	pipe.ZAdd(ctx, teacherKey(s.TeacherID), redis.Z{Score: float64(s.CreatedAt.UnixNano()), Member: s.ID})
	// the index lives as long as its longest-lived session
	pipe.ExpireNX(ctx, teacherKey(s.TeacherID), ttl)
	pipe.ExpireGT(ctx, teacherKey(s.TeacherID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		if rerr := releaseCode.Run(ctx, r.client, []string{codeKey(s.Code)}, s.ID).Err(); rerr != nil && !errors.Is(rerr, redis.Nil) {
			log.Printf("release code %s after failed create: %v", s.Code, rerr)
		}
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get returns a session by id.
func (r *RedisSessionStore) Get(ctx context.Context, id string) (Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// FindActiveByCode resolves the code key and loads the session.
func (r *RedisSessionStore) FindActiveByCode(ctx context.Context, code string) (Session, error) {
	id, err := r.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	s, err := r.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !s.Active {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// Deactivate rewrites the session as inactive and releases its code. Racing
// callers all write the same value.
func (r *RedisSessionStore) Deactivate(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Active {
		s.Active = false
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		if err := r.client.SetArgs(ctx, sessionKey(id), data, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
			return err
		}
	}
	if err := releaseCode.Run(ctx, r.client, []string{codeKey(s.Code)}, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return r.client.ZRem(ctx, teacherKey(s.TeacherID), id).Err()
}

// ListActiveByTeacher returns open sessions, newest first. Ids whose session
// key has expired are pruned from the index.
func (r *RedisSessionStore) ListActiveByTeacher(ctx context.Context, teacherID string, now time.Time) ([]Session, error) {
	ids, err := r.client.ZRevRange(ctx, teacherKey(teacherID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	var out []Session
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s Session
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", ids[i], err)
		}
		if s.Open(now) {
			out = append(out, s)
		}
	}
	if len(stale) > 0 {
		if err := r.client.ZRem(ctx, teacherKey(teacherID), stale...).Err(); err != nil {
			log.Printf("prune stale sessions for %s: %v", teacherID, err)
		}
	}
	return out, nil
}
