package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the delivery service, loaded from
// environment variables (a local .env file is honored when present).
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	DrainInterval    time.Duration `env:"DRAIN_INTERVAL" envDefault:"15s"`
	DrainBatchSize   int           `env:"DRAIN_BATCH_SIZE" envDefault:"50"`
	DrainConcurrency int           `env:"DRAIN_CONCURRENCY" envDefault:"8"`

	BackoffBaseDelay time.Duration `env:"BACKOFF_BASE_DELAY" envDefault:"1m"`
	BackoffMaxDelay  time.Duration `env:"BACKOFF_MAX_DELAY" envDefault:"1h"`

	// Shared secrets for verifying webhooks arriving from vendors, keyed by
	// vendor name, e.g. "twilio:whsec_abc,deepgram:whsec_def".
	VendorWebhookSecrets map[string]string `env:"VENDOR_WEBHOOK_SECRETS"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	// The .env file is optional; absence is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
