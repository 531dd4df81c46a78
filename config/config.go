package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// MPesa (Daraja) configuration
	MpesaEnv            string // sandbox or production
	MpesaShortCode      string
	MpesaPassKey        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaCallbackURL    string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Status reconciliation
	StatusFreshnessWindow time.Duration

	// Client polling
	PollInterval    time.Duration
	PollMaxAttempts int

	// Stale pending sweep
	PendingRetention time.Duration
	SweepInterval    time.Duration

	// Rate limiting. Applies to the public status endpoint only; provider
	// callbacks are never limited.
	StatusRateLimit int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// MPesa
		MpesaEnv:            getEnv("MPESA_ENV", "sandbox"),
		MpesaShortCode:      getEnv("MPESA_SHORTCODE", ""),
		MpesaPassKey:        getEnv("MPESA_PASSKEY", ""),
		MpesaConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
		MpesaConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
		MpesaCallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Reconciliation
		StatusFreshnessWindow: getEnvAsDuration("STATUS_FRESHNESS_WINDOW", "2m"),

		// Polling
		PollInterval:    getEnvAsDuration("POLL_INTERVAL", "2s"),
		PollMaxAttempts: getEnvAsInt("POLL_MAX_ATTEMPTS", 30),

		// Sweep
		PendingRetention: getEnvAsDuration("PENDING_RETENTION", "5m"),
		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", "1m"),

		// Rate limiting
		StatusRateLimit: getEnvAsInt("STATUS_RATE_LIMIT", 60),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
