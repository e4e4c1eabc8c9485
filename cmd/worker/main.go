package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"qrattend/internal/app"
	"qrattend/internal/config"
	"qrattend/internal/report"
)

// Worker consumes mark events and maintains the per-day subject tallies.
func main() {
	cfg := config.MustLoad()
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open backends: %v", err)
	}
	defer backends.Close()

	if !backends.Redis.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, will keep retrying", cfg.RedisAddr)
	}

	log.Println("worker started, waiting for mark events...")
	err = report.RunTally(ctx, backends.Queue(cfg), report.NewRedisTally(backends.Redis.Client, 0))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker stopped: %v", err)
		return
	}
	log.Println("worker stopped")
}
