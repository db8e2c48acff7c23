// Package config provides configuration management for the worker.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Worker  WorkerConfig
	Logging LoggingConfig
}

// WorkerConfig holds polling-loop-related configuration.
type WorkerConfig struct {
	SharedDBPath string
	WorkerDBPath string
	PollInterval time.Duration
	PollSchedule string
	Concurrency  int
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load loads the configuration from environment variables, falling back to
// a .env file in the working directory if present.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Worker: WorkerConfig{
			SharedDBPath: getEnv("SHARED_DB_PATH", "database.db"),
			WorkerDBPath: getEnv("WORKER_DB_PATH", "data/worker_workflows.db"),
			PollInterval: getEnvAsDuration("POLL_INTERVAL", 10*time.Second),
			PollSchedule: getEnv("POLL_SCHEDULE", ""),
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 1),
		},
		Logging: LoggingConfig{
			Level:  getEnv("MBFLOW_LOG_LEVEL", "info"),
			Format: getEnv("MBFLOW_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Worker.SharedDBPath == "" {
		return fmt.Errorf("shared db path is required")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	// Accept a bare number of seconds (as the source's poll_interval_seconds
	// float) in addition to Go duration syntax.
	if seconds, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
