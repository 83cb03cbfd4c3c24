// Package config loads runtime settings from the environment and the
// per-system column mapping files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverMongo     = "mongo"
	DriverMemory    = "memory"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	StoreDriver          string
	SQLConnString        string
	MongoConnString      string
	MongoDatabase        string
	SystemsPath          string
	PreviewTTL           time.Duration
	PreviewSweepInterval time.Duration
	HTTPAddr             string
	LogFile              string
	LogLevel             string
	Env                  string
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", DriverSQLServer)),
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "caregap"),
		SystemsPath:     getEnv("SYSTEMS_CONFIG", "configs/systems"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Env:             getEnv("APP_ENV", "production"),
	}

	var err error
	if cfg.PreviewTTL, err = getEnvDuration("PREVIEW_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PreviewSweepInterval, err = getEnvDuration("PREVIEW_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case DriverSQLServer:
		if cfg.SQLConnString == "" {
			return nil, fmt.Errorf("SQL_CONNECTION_STRING environment variable not set")
		}
	case DriverMongo:
		if cfg.MongoConnString == "" {
			return nil, fmt.Errorf("MONGO_CONNECTION_STRING environment variable not set")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, value)
	}
	return d, nil
}
