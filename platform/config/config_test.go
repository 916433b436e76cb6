package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("TENANTS_FILE", "tenants.yaml")
	t.Setenv("CORS_ALLOW_ALL", "false")
}

func TestLoadRetentionDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("RETRY_CLEANUP_INTERVAL", "")
	t.Setenv("RETRY_SENT_RETENTION_DAYS", "")
	t.Setenv("RETRY_EXPIRED_RETENTION_DAYS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GetRetentionInterval() != time.Hour {
		t.Fatalf("expected hourly cleanup, got %s", cfg.GetRetentionInterval())
	}
	if cfg.GetSentRetention() != 14*24*time.Hour || cfg.GetExpiredRetention() != 30*24*time.Hour {
		t.Fatalf("unexpected retention %s/%s", cfg.GetSentRetention(), cfg.GetExpiredRetention())
	}
}

func TestLoadRetentionOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RETRY_CLEANUP_INTERVAL", "15m")
	t.Setenv("RETRY_SENT_RETENTION_DAYS", "7")
	t.Setenv("RETRY_EXPIRED_RETENTION_DAYS", "-3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GetRetentionInterval() != 15*time.Minute || cfg.GetSentRetention() != 7*24*time.Hour {
		t.Fatalf("overrides ignored: %s %s", cfg.GetRetentionInterval(), cfg.GetSentRetention())
	}
	if cfg.GetExpiredRetention() != 30*24*time.Hour {
		t.Fatalf("non-positive value must fall back, got %s", cfg.GetExpiredRetention())
	}
}
