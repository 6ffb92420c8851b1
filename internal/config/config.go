// Package config validates the environment variables the fabric process consumes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the fabric process.
type Config struct {
	// Listen address (defaults 8080 and 0.0.0.0)
	Port string
	Host string

	// Optional variables with defaults
	GoEnv          string
	LogLevel       string
	AllowedOrigins []string

	// Tuning
	OutboundQueueSize int

	// Rate limits (ulule/limiter formatted rates, e.g. "100-M")
	RateLimitAPIRooms string
	RateLimitAPISignal string

	// Tracing (optional; tracing is disabled if unset)
	OTLPEndpoint string
}

// Load validates all environment variables the core consumes and returns a Config.
// Unset variables take their defaults; returns an error if PORT or
// OUTBOUND_QUEUE_SIZE is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.Host = getEnvOrDefault("HOST", "0.0.0.0")

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	originsRaw := getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(originsRaw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	queueSizeRaw := getEnvOrDefault("OUTBOUND_QUEUE_SIZE", "128")
	queueSize, err := strconv.Atoi(queueSizeRaw)
	if err != nil || queueSize < 1 {
		errs = append(errs, fmt.Sprintf("OUTBOUND_QUEUE_SIZE must be a positive integer (got %q)", queueSizeRaw))
	}
	cfg.OutboundQueueSize = queueSize

	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPISignal = getEnvOrDefault("RATE_LIMIT_API_SIGNAL", "500-M")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"host", cfg.Host,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"allowed_origins", cfg.AllowedOrigins,
		"outbound_queue_size", cfg.OutboundQueueSize,
		"tracing_enabled", cfg.OTLPEndpoint != "",
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
