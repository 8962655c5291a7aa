package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Replicate (HD image generation)
	ReplicateAPIBaseURL string
	ReplicateAPIToken   string
	GenerateTimeout     time.Duration

	// Prodigi (print fulfillment partner)
	ProdigiAPIBaseURL string
	ProdigiAPIKey     string

	// Supabase (asset storage + event audit trail)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	SignedURLTTL          time.Duration

	// Operator console auth
	AdminJWTSecret string

	// Fulfillment
	AutoSubmit bool // submit to the print partner without operator approval

	// Database
	DatabaseURL string

	// Server
	Port        string
	Environment string
}

func Load() (*Config, error) {
	cfg := &Config{
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		ReplicateAPIBaseURL: getEnv("REPLICATE_API_BASE_URL", "https://api.replicate.com/v1/"),
		ReplicateAPIToken:   getEnv("REPLICATE_API_TOKEN", ""),
		GenerateTimeout:     getDurationEnv("GENERATE_TIMEOUT", 5*time.Minute),

		ProdigiAPIBaseURL: getEnv("PRODIGI_API_BASE_URL", "https://api.prodigi.com/v4.0/"),
		ProdigiAPIKey:     getEnv("PRODIGI_API_KEY", ""),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "print-assets"),
		SignedURLTTL:          getDurationEnv("SIGNED_URL_TTL", 7*24*time.Hour),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AutoSubmit: getBoolEnv("AUTO_SUBMIT_PRINTS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required")
	}
	return nil
}

// ValidatePipeline checks the credentials the fulfillment pipeline needs
// before any external call is made. Retry marks an order failed immediately
// on a configuration error instead of attempting partial work.
func (c *Config) ValidatePipeline() error {
	if c.ReplicateAPIToken == "" {
		return fmt.Errorf("REPLICATE_API_TOKEN is required")
	}
	if c.ProdigiAPIKey == "" {
		return fmt.Errorf("PRODIGI_API_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
