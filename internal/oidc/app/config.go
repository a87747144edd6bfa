package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer string // Required: issuer claim for identity tokens

	Salt                 string        // Optional: shared base64 salt for client secret derivation (per-client random when empty)
	DatabaseFile         string        // Optional: path to SQLite database file (default: ./oidc.db)
	CodeTTL              time.Duration // Optional: authorization code lifetime (default: 10m)
	AccessTTL            time.Duration // Optional: access token lifetime (default: 1h)
	IdentityTTL          time.Duration // Optional: identity token validity window (default: 1h)
	UserHeader           string        // Header carrying the end-user identity from the fronting proxy (default: Remote-User)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	HousekeepingRetain   time.Duration // How long dead grant rows are retained for audit (default: 30 days)
}

// LoadConfig reads configuration from the environment, with an optional .env
// file for local development. Environment variables win over the file.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		Issuer:               os.Getenv("OIDC_ISSUER"),
		Salt:                 os.Getenv("OIDC_SALT"),
		DatabaseFile:         getEnvOrDefault("OIDC_DATABASE_FILE", "oidc.db"),
		CodeTTL:              getEnvDurationOrDefault("OIDC_CODE_TTL", 10*time.Minute),
		AccessTTL:            getEnvDurationOrDefault("OIDC_ACCESS_TTL", time.Hour),
		IdentityTTL:          getEnvDurationOrDefault("OIDC_IDENTITY_TTL", time.Hour),
		UserHeader:           getEnvOrDefault("OIDC_USER_HEADER", "Remote-User"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		HousekeepingRetain:   getEnvDurationOrDefault("HOUSEKEEPING_RETAIN", 30*24*time.Hour),
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "http://localhost:8080"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are read as seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
