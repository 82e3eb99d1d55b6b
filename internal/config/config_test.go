package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_USER", "bean")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "bean_counter")
	t.Setenv("ACCESS_TOKEN_SECRET", "a-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "r-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTLMin != 15 || cfg.RefreshTTLDays != 7 {
		t.Fatalf("ttl defaults: %d min, %d days", cfg.AccessTTLMin, cfg.RefreshTTLDays)
	}
	if !cfg.CookieSecure || cfg.RefreshReloadsPermissions || cfg.LogoutScope != "all" {
		t.Fatalf("session defaults: %+v", cfg)
	}
	if cfg.Issuer != "bean-counter" || cfg.Audience != "bean-counter-web" {
		t.Fatalf("issuer/audience: %q %q", cfg.Issuer, cfg.Audience)
	}
	if got := cfg.DSN(); got != "bean@tcp(127.0.0.1:3306)/bean_counter?charset=utf8mb4&parseTime=true&loc=UTC" {
		t.Fatalf("DSN = %q", got)
	}
}

func TestLoadReportsAllMissing(t *testing.T) {
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"DB_USER", "DB_HOST", "DB_NAME", "ACCESS_TOKEN_SECRET", "REFRESH_TOKEN_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("REFRESH_TOKEN_SECRET", "a-secret")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected shared secret error, got %v", err)
	}
}

func TestLoadRejectsUnknownLogoutScope(t *testing.T) {
	setRequired(t)
	t.Setenv("LOGOUT_SCOPE", "everyone")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestRateLimitClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	rl := LoadRateLimitConfig()
	if rl.Capacity != 1 {
		t.Fatalf("capacity = %d", rl.Capacity)
	}
	if rl.TTL != 5*time.Minute {
		t.Fatalf("ttl = %v", rl.TTL)
	}
}
