package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Webhook    WebhookConfig
	OTEL       OTELConfig
	S3         S3Config
	RabbitMQ   RabbitMQConfig
	Membership MembershipConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        string
	BodyLimitKB int64
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// JWTConfig holds the shared secret used to verify access tokens
type JWTConfig struct {
	Secret string
}

// WebhookConfig holds the payment provider webhook signing secret
type WebhookConfig struct {
	Secret string
}

// OTELConfig holds OpenTelemetry exporter configuration
type OTELConfig struct {
	Enabled        bool
	Endpoint       string
	InstanceID     string
	Token          string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// S3Config holds the receipt archive bucket configuration
type S3Config struct {
	Enabled  bool
	Endpoint string
	Region   string
	Bucket   string
}

// RabbitMQConfig holds the event bus connection. An empty URL disables publishing.
type RabbitMQConfig struct {
	URL string
}

// MembershipConfig holds tunables for membership writes and caching
type MembershipConfig struct {
	MaxWriteAttempts      int
	ActiveCacheTTLSeconds int64
	PlanCacheTTLSeconds   int64
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			BodyLimitKB: getEnvAsInt64("BODY_LIMIT_KB", 512),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			Database: getEnv("MONGODB_DATABASE", "homepro"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "membership-service"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
		},
		S3: S3Config{
			Enabled:  getEnvAsBool("RECEIPTS_S3_ENABLED", false),
			Endpoint: getEnv("RECEIPTS_S3_ENDPOINT", "http://localhost:8333"),
			Region:   getEnv("RECEIPTS_S3_REGION", "us-east-1"),
			Bucket:   getEnv("RECEIPTS_S3_BUCKET", "payment-receipts"),
		},
		RabbitMQ: RabbitMQConfig{
			URL: getEnv("RABBITMQ_URL", ""),
		},
		Membership: MembershipConfig{
			MaxWriteAttempts:      int(getEnvAsInt64("MEMBERSHIP_MAX_WRITE_ATTEMPTS", 2)),
			ActiveCacheTTLSeconds: getEnvAsInt64("MEMBERSHIP_ACTIVE_CACHE_TTL_SECONDS", 60),
			PlanCacheTTLSeconds:   getEnvAsInt64("PLAN_CACHE_TTL_SECONDS", 600),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required")
	}
	if c.Membership.MaxWriteAttempts < 1 {
		return fmt.Errorf("MEMBERSHIP_MAX_WRITE_ATTEMPTS must be at least 1")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
