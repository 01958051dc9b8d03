// Package config loads process configuration from environment variables,
// the way the teacher's internal/config does: read once at startup,
// validate, and hand a single immutable *Config to every constructor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every recognized environment option from spec.md §6.
type Config struct {
	DatabaseURL        string
	LogLevel           string
	LogFormat          string // "text" or "json"
	ServerHost         string
	ServerPort         string
	GeonamesBaseURL    string
	MaxBotsDefault     int
	SnapshotInterval   time.Duration
	DriverHeadless     bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		LogLevel:        getenvDefault("LOG_LEVEL", "info"),
		LogFormat:       getenvDefault("LOG_FORMAT", "json"),
		ServerHost:      getenvDefault("SERVER_HOST", "0.0.0.0"),
		ServerPort:      getenvDefault("SERVER_PORT", "8080"),
		GeonamesBaseURL: getenvDefault("GEONAMES_BASE_URL", "http://localhost:8765"),
		DriverHeadless:  true,
		RedisAddr:       getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be 'text' or 'json', got %q", cfg.LogFormat)
	}

	maxBots := 3
	if v := os.Getenv("MAX_BOTS_DEFAULT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_BOTS_DEFAULT: %q", v)
		}
		maxBots = n
	}
	cfg.MaxBotsDefault = maxBots

	snapshotMS := 1000
	if v := os.Getenv("SNAPSHOT_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid SNAPSHOT_INTERVAL_MS: %q", v)
		}
		snapshotMS = n
	}
	cfg.SnapshotInterval = time.Duration(snapshotMS) * time.Millisecond

	if v := os.Getenv("DRIVER_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DRIVER_HEADLESS: %q", v)
		}
		cfg.DriverHeadless = b
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		cfg.RedisDB = n
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
