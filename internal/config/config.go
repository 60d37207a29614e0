package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is shared by both commands. The server never simulates, so
// BroadcastHz only applies to cmd/player when it hosts a session.
type Config struct {
	Addr          string
	DatabaseURL   string
	Env           string
	LogLevel      string
	Countdown     time.Duration
	CountdownTick time.Duration
	OutboxSize    int
	BroadcastHz   int
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Addr:        getEnvDefault("ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Env:         getEnvDefault("APP_ENV", "development"),
		LogLevel:    getEnvDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Countdown, err = durationEnv("COUNTDOWN", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CountdownTick, err = durationEnv("COUNTDOWN_TICK", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.OutboxSize, err = intEnv("OUTBOX_SIZE", 64); err != nil {
		return Config{}, err
	}
	if cfg.BroadcastHz, err = intEnv("BROADCAST_HZ", 30); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid number %q", key, raw)
	}
	return n, nil
}
