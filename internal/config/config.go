/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how progress events leave the process.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string

	// Planning
	UTCOffsetMinutes   int // fixed offset used to lay out calendar days
	OptimizerMaxIter   int
	OptimizerMaxStale  int
	OptimizerInitTemp  float64
	OptimizerCooling   float64
	MeetingSearchDays  int
	ScheduleLockTTL    time.Duration
	LockCleanupEvery   time.Duration
	DefaultLockTTL     time.Duration
	ReplaceOnGenerate  bool

	// Event bus
	EventBus EventBusBackend
	NATSURL  string

	// Schedule archive (S3 when a bucket is set, otherwise ArchiveDir)
	ArchiveDir        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"TEAMSLOT_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"TEAMSLOT_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"TEAMSLOT_HTTP_PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"TEAMSLOT_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"TEAMSLOT_DB_DSN", "DATABASE_URL"}, ""),
		JWTSigningKey: getEnvAny([]string{"TEAMSLOT_JWT_SIGNING_KEY"}, ""),

		UTCOffsetMinutes:  getEnvIntAny([]string{"TEAMSLOT_UTC_OFFSET_MINUTES"}, 0),
		OptimizerMaxIter:  getEnvIntAny([]string{"TEAMSLOT_OPTIMIZER_MAX_ITERATIONS"}, 100),
		OptimizerMaxStale: getEnvIntAny([]string{"TEAMSLOT_OPTIMIZER_MAX_NO_IMPROVEMENT"}, 20),
		OptimizerInitTemp: getEnvFloatAny([]string{"TEAMSLOT_OPTIMIZER_INITIAL_TEMPERATURE"}, 100),
		OptimizerCooling:  getEnvFloatAny([]string{"TEAMSLOT_OPTIMIZER_COOLING_RATE"}, 0.95),
		MeetingSearchDays: getEnvIntAny([]string{"TEAMSLOT_MEETING_SEARCH_DAYS"}, 14),
		ScheduleLockTTL:   time.Duration(getEnvIntAny([]string{"TEAMSLOT_SCHEDULE_LOCK_TTL_SECONDS"}, 300)) * time.Second,
		LockCleanupEvery:  time.Duration(getEnvIntAny([]string{"TEAMSLOT_LOCK_CLEANUP_SECONDS"}, 60)) * time.Second,
		DefaultLockTTL:    time.Duration(getEnvIntAny([]string{"TEAMSLOT_LOCK_TTL_SECONDS"}, 120)) * time.Second,
		ReplaceOnGenerate: getEnvBoolAny([]string{"TEAMSLOT_REPLACE_ON_GENERATE"}, true),

		EventBus: EventBusBackend(getEnvAny([]string{"TEAMSLOT_EVENT_BUS"}, string(EventBusMemory))),
		NATSURL:  getEnvAny([]string{"TEAMSLOT_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),

		ArchiveDir:        getEnvAny([]string{"TEAMSLOT_ARCHIVE_DIR"}, "./archive"),
		S3AccessKeyID:     getEnvAny([]string{"TEAMSLOT_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"TEAMSLOT_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"TEAMSLOT_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"TEAMSLOT_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"TEAMSLOT_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"TEAMSLOT_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"TEAMSLOT_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"TEAMSLOT_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"TEAMSLOT_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"TEAMSLOT_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"TEAMSLOT_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"TEAMSLOT_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"TEAMSLOT_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"TEAMSLOT_INSTANCE_ID"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("TEAMSLOT_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("TEAMSLOT_JWT_SIGNING_KEY must be provided")
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.UTCOffsetMinutes < -14*60 || cfg.UTCOffsetMinutes > 14*60 {
		return nil, fmt.Errorf("TEAMSLOT_UTC_OFFSET_MINUTES out of range: %d", cfg.UTCOffsetMinutes)
	}

	if cfg.OptimizerCooling <= 0 || cfg.OptimizerCooling >= 1 {
		return nil, fmt.Errorf("TEAMSLOT_OPTIMIZER_COOLING_RATE must be between 0 and 1, got %v", cfg.OptimizerCooling)
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("TEAMSLOT_JWT_SIGNING_KEY must be at least 32 characters in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Location returns the fixed zone used for calendar days.
func (c *Config) Location() *time.Location {
	if c == nil || c.UTCOffsetMinutes == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", c.UTCOffsetMinutes/60, abs(c.UTCOffsetMinutes%60)), c.UTCOffsetMinutes*60)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use TEAMSLOT_ENV",
		"JWT_SIGNING_KEY":     "use TEAMSLOT_JWT_SIGNING_KEY",
		"TRACING_ENABLED":     "use TEAMSLOT_TRACING_ENABLED",
		"OTLP_ENDPOINT":       "use TEAMSLOT_OTLP_ENDPOINT",
		"TRACING_SAMPLE_RATE": "use TEAMSLOT_TRACING_SAMPLE_RATE",
		"SLOT_LOCK_TTL":       "use TEAMSLOT_LOCK_TTL_SECONDS",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
