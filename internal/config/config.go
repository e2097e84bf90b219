package config

import (
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	WSAddr   string
	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	TimeControl      string
	TimeControlFile  string
	InitialTimeMs    int
	IncrementMs      int
	initialFromEnv   bool
	incrementFromEnv bool

	GraceTimeoutMs  int
	CleanupDelaySec int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		WSAddr:          ":8090",
		HTTPAddr:        ":8091",
		TimeControl:     "rapid",
		InitialTimeMs:   600_000,
		IncrementMs:     0,
		GraceTimeoutMs:  30_000,
		CleanupDelaySec: 60,
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ARENA_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("TIME_CONTROL")); v != "" {
		cfg.TimeControl = v
	}
	cfg.TimeControlFile = strings.TrimSpace(os.Getenv("TIME_CONTROL_FILE"))
	if v := strings.TrimSpace(os.Getenv("INITIAL_TIME_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InitialTimeMs = n
			cfg.initialFromEnv = true
		}
	}
	if v := strings.TrimSpace(os.Getenv("INCREMENT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.IncrementMs = n
			cfg.incrementFromEnv = true
		}
	}
	if v := strings.TrimSpace(os.Getenv("GRACE_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GraceTimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLEANUP_DELAY_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CleanupDelaySec = n
		}
	}

	return cfg, nil
}
