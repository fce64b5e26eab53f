package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Server.Port != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Quiz.SingleSize != 10 || cfg.Quiz.SingleThreshold != 5 || cfg.Quiz.MixedSize != 20 || cfg.Quiz.MixedThreshold != 10 {
		t.Fatalf("unexpected quiz defaults %+v", cfg.Quiz)
	}
	if cfg.Seed.Target != 100 {
		t.Fatalf("expected seed target 100, got %d", cfg.Seed.Target)
	}
}

func TestLoadOverridesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: "9090"
storage:
  backend: redis
redis:
  addr: localhost:6379
  session_ttl: 30m
quiz:
  mixed_size: 25
generator:
  provider: none
log:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Quiz.MixedSize != 25 || cfg.Quiz.SingleSize != 10 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := TTLDuration(cfg.Redis.SessionTTL, time.Hour); got != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %v", got)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel())
	}
}

func TestValidateRejectsIncompleteBackends(t *testing.T) {
	cases := map[string]func(*Config){
		"redis without addr":   func(c *Config) { c.Storage.Backend = BackendRedis },
		"postgres without url": func(c *Config) { c.Storage.Backend = BackendPostgres },
		"unknown backend":      func(c *Config) { c.Storage.Backend = "etcd" },
		"unknown provider":     func(c *Config) { c.Generator.Provider = "oracle" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	cfg := Default()
	cfg.Generator.APIKeyEnv = "MASTERY_TEST_KEY"
	t.Setenv("MASTERY_TEST_KEY", "secret")
	if cfg.APIKey() != "secret" {
		t.Fatalf("expected key from env")
	}
}

func TestTTLDuration(t *testing.T) {
	if TTLDuration("", time.Minute) != time.Minute {
		t.Fatalf("empty should fall back")
	}
	if TTLDuration("bogus", time.Minute) != time.Minute {
		t.Fatalf("invalid should fall back")
	}
	if TTLDuration("45s", time.Minute) != 45*time.Second {
		t.Fatalf("expected parsed duration")
	}
}
