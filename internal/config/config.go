// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable of the service. The retry cap and the sync
// cadence are deliberately configurable rather than hard-coded.
type Config struct {
	Addr    string
	DataDir string

	BackendURL     string
	BackendKey     string
	SessionTimeout time.Duration

	SyncInterval    time.Duration
	SettleDelay     time.Duration
	MinDrainSpacing time.Duration
	RetryCap        int
}

// Load reads the configuration. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:            envOrDefault("SALE_SYNC_ADDR", ":8081"),
		DataDir:         envOrDefault("SALE_SYNC_DATA_DIR", "data"),
		BackendURL:      envOrDefault("SALE_SYNC_BACKEND_URL", "http://localhost:54321"),
		BackendKey:      strings.TrimSpace(os.Getenv("SALE_SYNC_BACKEND_KEY")),
		SessionTimeout:  durationOrDefault("SALE_SYNC_SESSION_TIMEOUT", 3*time.Second),
		SyncInterval:    durationOrDefault("SALE_SYNC_INTERVAL", 30*time.Second),
		SettleDelay:     durationOrDefault("SALE_SYNC_SETTLE_DELAY", time.Second),
		MinDrainSpacing: durationOrDefault("SALE_SYNC_MIN_SPACING", 5*time.Second),
		RetryCap:        intOrDefault("SALE_SYNC_RETRY_CAP", 5),
	}
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intOrDefault(key string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && i > 0 {
		return i
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && d > 0 {
		return d
	}
	return fallback
}
