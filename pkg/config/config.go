// Package config loads process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the binaries need at startup.
type Config struct {
	DatabaseURL string
	ListenAddr  string

	GeminiAPIKey string
	GeminiModel  string

	// ProgressTTL bounds how long finished job progress stays readable.
	ProgressTTL time.Duration
	// ComputeTimeout is the soft ceiling for one run compute.
	ComputeTimeout time.Duration
	// DetectorSchedule is the cron expression for retroactive-change scans.
	DetectorSchedule string
}

// Load reads .env when present, then the environment. DATABASE_URL is
// the only hard requirement.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ListenAddr:       getenv("LISTEN_ADDR", ":8080"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getenv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		DetectorSchedule: getenv("DETECTOR_SCHEDULE", "0 2 * * *"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	var err error
	if cfg.ProgressTTL, err = duration("PROGRESS_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ComputeTimeout, err = duration("COMPUTE_TIMEOUT", time.Hour); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
