package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode      string // Set via flag, not env
	MockServices bool

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Identity provider tokens
	JwtSecret string

	// Server
	ApiPort            string
	ServiceApiPort     string
	AppBaseURL         string
	CorsAllowedOrigins []string

	// Payments
	StripeSecretKey      string
	StripeWebhookSecret  string
	PaymentCurrency      string
	WebhookTolerance     time.Duration
	StaleCheckoutAge     time.Duration
	PaymentSweepCronspec string

	// Notifications
	NotificationListLimit int
	LogNotificationsPath  string

	// Rate Limiting
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "haggle")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.AppBaseURL = strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/")
	cfg.StripeSecretKey = getEnv("STRIPE_SECRET_KEY", "")
	cfg.StripeWebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", "")
	cfg.PaymentCurrency = strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd"))
	cfg.PaymentSweepCronspec = getEnv("PAYMENT_SWEEP_CRON", "@every 10m")
	cfg.LogNotificationsPath = getEnv("LOG_NOTIFICATIONS", "")
	cfg.MockServices = getEnv("MOCK_SERVICES", "") == "true"

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.CorsAllowedOrigins = append(cfg.CorsAllowedOrigins, trimmed)
		}
	}

	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	toleranceSeconds, err := strconv.ParseInt(getEnv("WEBHOOK_TOLERANCE_SECONDS", "300"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TOLERANCE_SECONDS: %w", err)
	}
	cfg.WebhookTolerance = time.Duration(toleranceSeconds) * time.Second

	staleMinutes, err := strconv.ParseInt(getEnv("STALE_CHECKOUT_MINUTES", "30"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid STALE_CHECKOUT_MINUTES: %w", err)
	}
	cfg.StaleCheckoutAge = time.Duration(staleMinutes) * time.Minute

	cfg.NotificationListLimit, err = strconv.Atoi(getEnv("NOTIFICATION_LIST_LIMIT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_LIST_LIMIT: %w", err)
	}

	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	if !cfg.MockServices && cfg.StripeSecretKey == "" && runMode != "bg" {
		return nil, fmt.Errorf("missing required environment variable: STRIPE_SECRET_KEY (or set MOCK_SERVICES=true)")
	}

	return cfg, nil
}
