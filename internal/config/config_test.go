package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if v := envInt("TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set; malformed values also fall back.
	if v := envInt("TEST_INT_MISSING", 99); v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7 for malformed value, got %d", v)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	if v := envDuration("TEST_DUR", 0); v != 5*time.Second {
		t.Fatalf("expected 5s, got %s", v)
	}
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	if v := envDuration("TEST_DUR_BAD", time.Minute); v != time.Minute {
		t.Fatalf("expected fallback 1m for malformed value, got %s", v)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", "https://a.example, https://b.example ,")
	got := envList("TEST_LIST")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected list: %v", got)
	}
	if envList("TEST_LIST_MISSING") != nil {
		t.Fatal("expected nil for unset list")
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Production() {
		t.Fatal("defaults must not claim production")
	}
}

func TestValidateRejectsSharedSecrets(t *testing.T) {
	t.Setenv("BYABONEKA_ACCESS_SECRET", "same-secret-same-secret-same-secret")
	t.Setenv("BYABONEKA_REFRESH_SECRET", "same-secret-same-secret-same-secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail when access and refresh secrets match")
	}
}

func TestValidateRejectsDevSecretsInProduction(t *testing.T) {
	t.Setenv("BYABONEKA_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail on development secrets in production")
	}

	t.Setenv("BYABONEKA_ACCESS_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("BYABONEKA_REFRESH_SECRET", "fedcba9876543210fedcba9876543210")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with real secrets, got: %v", err)
	}
	if !cfg.Production() {
		t.Fatal("expected production mode")
	}
}

func TestValidateRejectsShortProductionSecret(t *testing.T) {
	t.Setenv("BYABONEKA_ENV", "production")
	t.Setenv("BYABONEKA_ACCESS_SECRET", "short")
	t.Setenv("BYABONEKA_REFRESH_SECRET", "fedcba9876543210fedcba9876543210")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail on a short production secret")
	}
}
