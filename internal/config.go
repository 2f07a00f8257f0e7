package internal

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Persistence
	StoreDriver string // "postgres" or "memory"

	// Application base URL (checkout redirects, download links)
	BaseURL string

	// Timezone used for calendar-day rules (streaks, briefings)
	Timezone string

	// API authentication
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	// Cache Configuration
	CacheDriver   string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string

	// Currency rates
	RatesFeedURL string
	RatesTTL     time.Duration
	RatesTimeout time.Duration

	// Storage Configuration
	StorageProvider string // "local", "r2" or "s3"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL the download handler is mounted at
	LocalSigningKey  string // HMAC key for download links

	// Object Storage (production)
	R2AccountID       string
	ObjectEndpoint    string
	ObjectAccessKeyID string
	ObjectSecretKey   string
	ObjectBucket      string
	ObjectRegion      string
	ObjectPathStyle   bool
	ExportURLTTL      time.Duration

	// AI Provider Configuration
	AIProvider       string // "anthropic", "openai" or "mock"
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AIModelBasic     string
	AIModelAdvanced  string
	AIModelPremium   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Groups
	InviteTTL time.Duration

	// Rate limiting (per user, falling back to client IP)
	RateLimitPerMinute   int
	AIRateLimitPerMinute int

	// Stripe Billing Configuration
	// In development, checkout fails cleanly if these are empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)

	// Stripe Price IDs for subscription plans
	StripePlusPriceID string
	StripeProPriceID  string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnvInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),
		DatabaseUrl: getEnv("DATABASE_URL", ""),
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),

		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		Timezone: getEnv("TIMEZONE", "UTC"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "cairn"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		CacheDriver:   getEnv("CACHE_DRIVER", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisPrefix:   getEnv("REDIS_PREFIX", "cairn:"),

		RatesFeedURL: getEnv("RATES_FEED_URL", ""),
		RatesTTL:     getEnvDuration("RATES_TTL", time.Hour),
		RatesTimeout: getEnvDuration("RATES_TIMEOUT", 10*time.Second),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),
		LocalSigningKey:  getEnv("LOCAL_STORAGE_SIGNING_KEY", ""),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		ObjectEndpoint:    getEnv("OBJECT_ENDPOINT", ""),
		ObjectAccessKeyID: getEnv("OBJECT_ACCESS_KEY_ID", ""),
		ObjectSecretKey:   getEnv("OBJECT_SECRET_ACCESS_KEY", ""),
		ObjectBucket:      getEnv("OBJECT_BUCKET", ""),
		ObjectRegion:      getEnv("OBJECT_REGION", ""),
		ObjectPathStyle:   getEnvBool("OBJECT_PATH_STYLE", false),
		ExportURLTTL:      getEnvDuration("EXPORT_URL_TTL", 15*time.Minute),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		AIModelBasic:     getEnv("AI_MODEL_BASIC", ""),
		AIModelAdvanced:  getEnv("AI_MODEL_ADVANCED", ""),
		AIModelPremium:   getEnv("AI_MODEL_PREMIUM", ""),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		InviteTTL: getEnvDuration("INVITE_TTL", 7*24*time.Hour),

		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		AIRateLimitPerMinute: getEnvInt("AI_RATE_LIMIT_PER_MINUTE", 20),

		// Stripe billing (optional)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePlusPriceID:   getEnv("STRIPE_PLUS_PRICE_ID", ""),
		StripeProPriceID:    getEnv("STRIPE_PRO_PRICE_ID", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is 'postgres'")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be either 'postgres' or 'memory', got: %s", cfg.StoreDriver)
	}

	switch cfg.CacheDriver {
	case "redis":
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_DRIVER is 'redis'")
		}
	case "memory":
	default:
		return fmt.Errorf("CACHE_DRIVER must be either 'memory' or 'redis', got: %s", cfg.CacheDriver)
	}

	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	// Validate storage configuration
	switch cfg.StorageProvider {
	case "local":
		if cfg.LocalSigningKey == "" {
			return fmt.Errorf("LOCAL_STORAGE_SIGNING_KEY is required when STORAGE_PROVIDER is 'local'")
		}
	case "r2", "s3":
		if cfg.StorageProvider == "r2" && cfg.R2AccountID == "" && cfg.ObjectEndpoint == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.ObjectAccessKeyID == "" {
			return fmt.Errorf("OBJECT_ACCESS_KEY_ID is required when STORAGE_PROVIDER is '%s'", cfg.StorageProvider)
		}
		if cfg.ObjectSecretKey == "" {
			return fmt.Errorf("OBJECT_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is '%s'", cfg.StorageProvider)
		}
		if cfg.ObjectBucket == "" {
			return fmt.Errorf("OBJECT_BUCKET is required when STORAGE_PROVIDER is '%s'", cfg.StorageProvider)
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be one of 'local', 'r2' or 's3', got: %s", cfg.StorageProvider)
	}

	// Validate AI provider configuration
	switch cfg.AIProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is 'openai'")
		}
	case "mock":
	default:
		return fmt.Errorf("AI_PROVIDER must be one of 'anthropic', 'openai' or 'mock', got: %s", cfg.AIProvider)
	}

	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	return nil
}

// Location returns the configured timezone. NewConfig has already validated it.
func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsSecure reports whether the server runs behind TLS.
func (cfg *Config) IsSecure() bool {
	return cfg.Env != "development"
}

// FilesPath returns the URL path the local download handler is mounted at.
func (cfg *Config) FilesPath() string {
	u, err := url.Parse(cfg.LocalStorageURL)
	if err != nil {
		return "/files/"
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "/files/"
	}
	return "/" + path + "/"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
