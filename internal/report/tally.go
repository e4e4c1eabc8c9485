package report

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
	"qrattend/internal/queue"
)

// Tallier keeps per-day, per-subject counts of marks.
type Tallier interface {
	Add(ctx context.Context, rec attendance.Record) error
	Counts(ctx context.Context, date string) (map[string]int64, error)
}

// countOnce increments the subject counter only the first time a record id
// is seen, so a redelivered event is not counted twice.
var countOnce = redis.NewScript(`
if redis.call("SADD", KEYS[2], ARGV[1]) == 1 then
	redis.call("HINCRBY", KEYS[1], ARGV[2], 1)
	redis.call("EXPIRE", KEYS[1], ARGV[3])
	redis.call("EXPIRE", KEYS[2], ARGV[3])
	return 1
end
return 0
`)

// RedisTally stores tallies in attendance:tally:<date> hashes.
type RedisTally struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisTally creates a tally kept for retention (default 35 days).
func NewRedisTally(client *redis.Client, retention time.Duration) *RedisTally {
	if retention <= 0 {
		retention = 35 * 24 * time.Hour
	}
	return &RedisTally{client: client, retention: retention}
}

func tallyKey(date string) string { return "attendance:tally:" + date }

// Add implements Tallier.
func (t *RedisTally) Add(ctx context.Context, rec attendance.Record) error {
	keys := []string{tallyKey(rec.Date), tallyKey(rec.Date) + ":seen"}
	secs := strconv.Itoa(int(t.retention.Seconds()))
	return countOnce.Run(ctx, t.client, keys, rec.ID, rec.Subject, secs).Err()
}

// Counts implements Tallier.
func (t *RedisTally) Counts(ctx context.Context, date string) (map[string]int64, error) {
	raw, err := t.client.HGetAll(ctx, tallyKey(date)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for subject, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tally %s/%s: %w", date, subject, err)
		}
		out[subject] = n
	}
	return out, nil
}

// MemoryTally is an in-process Tallier for single-node runs and tests.
type MemoryTally struct {
	mu     sync.Mutex
	seen   map[string]bool
	counts map[string]map[string]int64
}

// NewMemoryTally creates an empty tally.
func NewMemoryTally() *MemoryTally {
	return &MemoryTally{seen: map[string]bool{}, counts: map[string]map[string]int64{}}
}

// Add implements Tallier.
func (t *MemoryTally) Add(_ context.Context, rec attendance.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen[rec.ID] {
		return nil
	}
	t.seen[rec.ID] = true
	day := t.counts[rec.Date]
	if day == nil {
		day = map[string]int64{}
		t.counts[rec.Date] = day
	}
	day[rec.Subject]++
	return nil
}

// Counts implements Tallier.
func (t *MemoryTally) Counts(_ context.Context, date string) (map[string]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.counts[date]))
	for k, v := range t.counts[date] {
		out[k] = v
	}
	return out, nil
}

// RunTally consumes mark events from q into t until ctx is done.
func RunTally(ctx context.Context, q queue.Queue, t Tallier) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Type != queue.TypeMarked {
			continue
		}
		rec, err := queue.DecodeMarked(msg)
		if err != nil {
			log.Printf("tally: %v", err)
			continue
		}
		if err := t.Add(ctx, rec); err != nil {
			log.Printf("tally record %s failed: %v", rec.ID, err)
		}
	}
	return ctx.Err()
}
