package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds everything the process needs from the environment. Required
// variables fail fast at startup rather than at first use.
type Config struct {
	DatabaseURL string
	Port        int

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	StripeSecretKey      string
	StripeWebhookSecret  string
	StripePublishableKey string

	AppURL    string
	PlansFile string
}

// Load reads configuration from the environment. It returns an error naming
// the first missing required variable.
func Load() (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.DatabaseURL, err = required("DATABASE_URL"); err != nil {
		return nil, err
	}
	if cfg.StripeSecretKey, err = required("STRIPE_SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.StripeWebhookSecret, err = required("STRIPE_WEBHOOK_SECRET"); err != nil {
		return nil, err
	}
	if cfg.AppURL, err = required("APP_URL"); err != nil {
		return nil, err
	}

	cfg.StripePublishableKey = os.Getenv("STRIPE_PUBLISHABLE_KEY")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	cfg.Port = 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	cfg.RedisAddr = envOr("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.RedisDB = db
		}
	}

	cfg.MinioEndpoint = envOr("MINIO_ENDPOINT", "localhost:9000")
	cfg.MinioAccessKey = envOr("MINIO_ACCESS_KEY", "minioadmin")
	cfg.MinioSecretKey = envOr("MINIO_SECRET_KEY", "minioadmin")
	cfg.MinioUseSSL = os.Getenv("MINIO_USE_SSL") == "true"

	cfg.PlansFile = envOr("PLANS_FILE", "plans.toml")

	return cfg, nil
}

func required(name string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("%s environment variable is required", name)
	}
	return value, nil
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
