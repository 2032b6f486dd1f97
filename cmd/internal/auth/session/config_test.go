package session

import (
	"testing"
	"time"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("PREDIXA_JWT_ACCESS_SECRET", testAccessSecret)
	t.Setenv("PREDIXA_JWT_REFRESH_SECRET", testRefreshSecret)
}

func TestLoadConfigFromEnv_MissingSecrets(t *testing.T) {
	t.Setenv("PREDIXA_JWT_ACCESS_SECRET", "")
	t.Setenv("PREDIXA_JWT_REFRESH_SECRET", "")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing secrets, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortSecret(t *testing.T) {
	t.Setenv("PREDIXA_JWT_ACCESS_SECRET", "too-short")
	t.Setenv("PREDIXA_JWT_REFRESH_SECRET", testRefreshSecret)
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for short secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_IdenticalSecrets(t *testing.T) {
	t.Setenv("PREDIXA_JWT_ACCESS_SECRET", testAccessSecret)
	t.Setenv("PREDIXA_JWT_REFRESH_SECRET", testAccessSecret)
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for identical secrets, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	setSecrets(t)
	t.Setenv("PREDIXA_AUTH_ACCESS_TTL", "-5m")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_AccessMustBeShorterThanRefresh(t *testing.T) {
	setSecrets(t)
	t.Setenv("PREDIXA_AUTH_ACCESS_TTL", "48h")
	t.Setenv("PREDIXA_AUTH_REFRESH_TTL", "24h")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for ttl order, got %v", err)
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	setSecrets(t)
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("access ttl: got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 14*24*time.Hour {
		t.Fatalf("refresh ttl: got %v", cfg.RefreshTokenTTL)
	}
	if cfg.Issuer != "predixa" {
		t.Fatalf("issuer: got %q", cfg.Issuer)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	setSecrets(t)
	t.Setenv("PREDIXA_AUTH_ISSUER", "predixa-test")
	t.Setenv("PREDIXA_AUTH_ACCESS_TTL", "5m")
	t.Setenv("PREDIXA_AUTH_REFRESH_TTL", "168h")
	t.Setenv("PREDIXA_AUTH_CLOCK_SKEW", "20s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Issuer != "predixa-test" || cfg.AccessTokenTTL != 5*time.Minute ||
		cfg.RefreshTokenTTL != 168*time.Hour || cfg.ClockSkew != 20*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
