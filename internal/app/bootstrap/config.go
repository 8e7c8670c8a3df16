package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the attribution service.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	LookbackDays       int
	CandidateLimit     int
	CandidateFetchTime time.Duration
	Models             []string
	IdempotencyTTL     time.Duration
	DedupTTL           time.Duration
	TrackRateThreshold int
	TrackRateWindow    time.Duration

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
	ReconcileInterval  time.Duration
	ReconcileBatchSize int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Attribution struct {
		LookbackDays   int      `yaml:"lookback_days"`
		CandidateLimit int      `yaml:"candidate_limit"`
		Models         []string `yaml:"models"`
	} `yaml:"attribution"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "attribution-service",
		HTTPPort:           8080,
		GRPCPort:           9090,
		JWTKeyID:           "attribution-key-1",
		AllowEphemeralJWT:  true,
		LookbackDays:       90,
		CandidateLimit:     200,
		CandidateFetchTime: 5 * time.Second,
		Models:             []string{"first_touch", "last_touch", "linear"},
		IdempotencyTTL:     7 * 24 * time.Hour,
		DedupTTL:           72 * time.Hour,
		TrackRateThreshold: 120,
		TrackRateWindow:    time.Minute,
		MaxDBConns:         20,
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    100,
		OutboxClaimTTL:     30 * time.Second,
		OutboxMaxRetries:   5,
		ReconcileInterval:  time.Minute,
		ReconcileBatchSize: 50,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Attribution.LookbackDays > 0 {
			cfg.LookbackDays = f.Attribution.LookbackDays
		}
		if f.Attribution.CandidateLimit > 0 {
			cfg.CandidateLimit = f.Attribution.CandidateLimit
		}
		if len(f.Attribution.Models) > 0 {
			cfg.Models = f.Attribution.Models
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.LookbackDays = envInt("ATTRIBUTION_LOOKBACK_DAYS", cfg.LookbackDays)
	cfg.CandidateLimit = envInt("ATTRIBUTION_CANDIDATE_LIMIT", cfg.CandidateLimit)
	cfg.CandidateFetchTime = time.Duration(envInt("ATTRIBUTION_FETCH_TIMEOUT_SECONDS", int(cfg.CandidateFetchTime.Seconds()))) * time.Second
	cfg.Models = envCSV("ATTRIBUTION_MODELS", cfg.Models)
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.DedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.DedupTTL.Hours()))) * time.Hour
	cfg.TrackRateThreshold = envInt("TRACK_RATE_LIMIT_THRESHOLD", cfg.TrackRateThreshold)
	cfg.TrackRateWindow = time.Duration(envInt("TRACK_RATE_LIMIT_WINDOW_SECONDS", int(cfg.TrackRateWindow.Seconds()))) * time.Second

	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.ReconcileInterval = time.Duration(envInt("RECONCILE_INTERVAL_SECONDS", int(cfg.ReconcileInterval.Seconds()))) * time.Second
	cfg.ReconcileBatchSize = envInt("RECONCILE_BATCH_SIZE", cfg.ReconcileBatchSize)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.JWTPublicKeyPEM == "" && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
