package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host        string
	Port        int
	MetricsPort int

	// Database configuration
	DatabasePath string

	// Strava API configuration
	StravaBaseURL string

	// Internal API configuration
	InternalAPIKey string

	// Background scheduler configuration
	SchedulerEnabled bool
	SyncInterval     time.Duration
	SyncCooldown     time.Duration

	// Logging configuration
	LogLevel string
}

// Load reads configuration from environment variables
// It fails fast if required variables are missing
func Load() (*Config, error) {
	cfg := &Config{
		// Optional values with defaults
		Host:             getEnv("HOST", "localhost"),
		Port:             getEnvInt("PORT", 4101),
		MetricsPort:      getEnvInt("METRICS_PORT", 4102),
		DatabasePath:     getEnv("DATABASE_PATH", "./data.db"),
		StravaBaseURL:    getEnv("STRAVA_BASE_URL", ""),
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		SyncInterval:     getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		SyncCooldown:     getEnvDuration("SYNC_COOLDOWN", 1*time.Hour),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	// Required values
	var missingVars []string

	cfg.InternalAPIKey = os.Getenv("INTERNAL_API_KEY")
	if cfg.InternalAPIKey == "" {
		missingVars = append(missingVars, "INTERNAL_API_KEY")
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
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

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
