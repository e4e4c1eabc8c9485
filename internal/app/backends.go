// Package app opens the storage backends selected by configuration and
// assembles the attendance service on top of them.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/handler"
	"qrattend/internal/queue"
	"qrattend/internal/report"
	"qrattend/internal/store"
)

const dbConnectTimeout = 5 * time.Second

// Backends holds the opened stores. Close releases them.
type Backends struct {
	Sessions attendance.SessionStore
	Ledger   attendance.Ledger
	// Redis is nil unless some component is configured to use it.
	Redis  *store.Redis
	Checks map[string]handler.HealthCheck

	migrate func(ctx context.Context) error
	closers []func() error
}

func needsRedis(cfg config.App) bool {
	return cfg.SessionBackend == "redis" || cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis"
}

// Open connects the ledger/session backend named by STORE_BACKEND and, when
// needed, Redis.
func Open(ctx context.Context, cfg config.App) (*Backends, error) {
	b := &Backends{Checks: map[string]handler.HealthCheck{}}

	switch cfg.StoreBackend {
	case "memory":
		mem := attendance.NewMemoryStore()
		b.Sessions, b.Ledger = mem, mem
		b.migrate = func(context.Context) error { return nil }

	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL, dbConnectTimeout)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		repo := attendance.NewRepository(db.Client)
		b.Sessions, b.Ledger = repo, repo
		b.migrate = repo.Migrate
		b.Checks["db"] = db.Healthy
		b.closers = append(b.closers, db.Close)

	case "sqlite":
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		g := attendance.NewGormStore(db)
		b.Sessions, b.Ledger = g, g
		b.migrate = func(context.Context) error { return g.Migrate() }
		b.closers = append(b.closers, func() error { return store.CloseGorm(db) })

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if needsRedis(cfg) {
		b.Redis = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		b.Checks["redis"] = b.Redis.Healthy
		b.closers = append(b.closers, b.Redis.Close)
	}
	if cfg.SessionBackend == "redis" {
		b.Sessions = attendance.NewRedisSessionStore(b.Redis.Client, cfg.SessionRetention)
	}
	return b, nil
}

// Migrate creates the ledger schema. Memory and Redis need none.
func (b *Backends) Migrate(ctx context.Context) error {
	return b.migrate(ctx)
}

// Close releases every backend, logging failures.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Printf("close backend: %v", err)
		}
	}
}

// Service builds the attendance service with the configured session rules.
func (b *Backends) Service(cfg config.App) *attendance.Service {
	return attendance.NewService(b.Sessions, b.Ledger, attendance.Options{
		RadiusMeters:    cfg.RadiusMeters,
		DurationMinutes: cfg.DurationMinutes,
		Location:        cfg.Location(),
	})
}

// Queue returns the mark event queue, or nil when QUEUE_BACKEND is none.
func (b *Backends) Queue(cfg config.App) queue.Queue {
	switch cfg.QueueBackend {
	case "redis":
		return queue.NewRedisQueue(b.Redis.Client, cfg.QueueKey)
	case "memory":
		return queue.NewInMemory(256)
	}
	return nil
}

// Tally returns the Redis tally when Redis is configured, otherwise an
// in-process one.
func (b *Backends) Tally() report.Tallier {
	if b.Redis != nil {
		return report.NewRedisTally(b.Redis.Client, 0)
	}
	return report.NewMemoryTally()
}
