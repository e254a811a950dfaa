package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TEAMSLOT_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("TEAMSLOT_JWT_SIGNING_KEY", "supersecret")
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	setRequired(t)
	t.Setenv("TEAMSLOT_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.OptimizerMaxIter != 100 || cfg.OptimizerMaxStale != 20 {
		t.Fatalf("unexpected optimizer defaults: %d/%d", cfg.OptimizerMaxIter, cfg.OptimizerMaxStale)
	}
	if cfg.LockCleanupEvery != time.Minute {
		t.Fatalf("lock cleanup interval = %v, want 1m", cfg.LockCleanupEvery)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SIGNING_KEY", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"db backend", "TEAMSLOT_DB_BACKEND", "oracle"},
		{"event bus", "TEAMSLOT_EVENT_BUS", "kafka"},
		{"offset", "TEAMSLOT_UTC_OFFSET_MINUTES", "1000"},
		{"cooling", "TEAMSLOT_OPTIMIZER_COOLING_RATE", "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.key, tt.val)
			}
		})
	}
}

func TestLoadProductionRequiresLongSigningKey(t *testing.T) {
	setRequired(t)
	t.Setenv("TEAMSLOT_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail with a short signing key")
	}

	t.Setenv("TEAMSLOT_JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load to succeed: %v", err)
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{}
	if cfg.Location() != time.UTC {
		t.Fatalf("zero offset should be UTC")
	}
	cfg.UTCOffsetMinutes = 540
	_, offset := time.Date(2026, 1, 5, 0, 0, 0, 0, cfg.Location()).Zone()
	if offset != 9*3600 {
		t.Fatalf("offset = %d, want %d", offset, 9*3600)
	}
}
