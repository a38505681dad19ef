package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Make sure ambient environment does not leak into the test. t.Setenv
	// registers the restore; the Unsetenv leaves the variable truly unset
	// for the duration of the test.
	for _, key := range []string{
		"LISTEN_ADDR", "DEBUG_TOKEN", "LOG_LEVEL", "REDIS_HOST", "REDIS_PORT",
		"REDIS_DB", "SESSION_DIR", "SESSION_TTL", "DATABASE_URL", "NATS_URL",
		"ROUTING_FILE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ListenAddr != ":8092" {
		t.Errorf("ListenAddr: expected :8092, got %q", cfg.ListenAddr)
	}
	if cfg.Redis.Host != "" {
		t.Errorf("Redis.Host: expected empty, got %q", cfg.Redis.Host)
	}
	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port: expected 6379, got %d", cfg.Redis.Port)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("Redis.DB: expected 0, got %d", cfg.Redis.DB)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL: expected 1h, got %s", cfg.SessionTTL)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("DEBUG_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr: got %q", cfg.ListenAddr)
	}
	if cfg.Redis.Host != "cache.internal" || cfg.Redis.Port != 6380 || cfg.Redis.DB != 3 {
		t.Errorf("Redis: got %+v", cfg.Redis)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL: got %s", cfg.SessionTTL)
	}
	if cfg.DebugToken != "secret" {
		t.Errorf("DebugToken: got %q", cfg.DebugToken)
	}
}
