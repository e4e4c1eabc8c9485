package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != "8081" || cfg.StoreBackend != "memory" || cfg.SessionBackend != "store" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RadiusMeters != 100 || cfg.DurationMinutes != 15 {
		t.Fatalf("session defaults = %v m / %d min", cfg.RadiusMeters, cfg.DurationMinutes)
	}
	if cfg.AccessTTL != 15*time.Minute || cfg.SessionRetention != 24*time.Hour {
		t.Fatalf("durations = %s / %s", cfg.AccessTTL, cfg.SessionRetention)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("location = %s", cfg.Location())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SESSION_RADIUS_METERS", "250.5")
	t.Setenv("ATTENDANCE_TIMEZONE", "Asia/Kolkata")
	t.Setenv("ACCESS_TTL", "1h")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StoreBackend != "sqlite" || cfg.RadiusMeters != 250.5 || cfg.AccessTTL != time.Hour {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Fatalf("location = %s", cfg.Location())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := "http_port: \"9000\"\nstore_backend: postgres\nsession_duration_minutes: 30\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HTTP_PORT", "9100")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StoreBackend != "postgres" || cfg.DurationMinutes != 30 {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.HTTPPort != "9100" {
		t.Fatalf("env should override file, got port %s", cfg.HTTPPort)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"store":    {"STORE_BACKEND", "mongo"},
		"session":  {"SESSION_BACKEND", "etcd"},
		"queue":    {"QUEUE_BACKEND", "kafka"},
		"limiter":  {"RATE_LIMIT_BACKEND", "nginx"},
		"radius":   {"SESSION_RADIUS_METERS", "0"},
		"duration": {"SESSION_DURATION_MINUTES", "-5"},
		"timezone": {"ATTENDANCE_TIMEZONE", "Mars/Olympus"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", "")
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s accepted", kv[0], kv[1])
			}
		})
	}
}
