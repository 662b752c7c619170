package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Webhooks    WebhooksConfig
	Jobs        JobsConfig
	Alerts      AlertsConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

type AuthConfig struct {
	// MasterSecret is the root secret all signing and encryption keys are
	// derived from. Rotating it invalidates admin tokens and stored
	// webhook-secret ciphertexts, so treat it as a long-lived value.
	MasterSecret   string
	AdminJWTExpiry time.Duration
	Issuer         string
	BcryptCost     int
}

type RateLimitConfig struct {
	// KeyIssuancePerHour bounds how many API keys a single organization can
	// mint per hour. Zero disables the limit.
	KeyIssuancePerHour int
	AdminPerMinute     int
}

type WebhooksConfig struct {
	DeliveryTimeout     time.Duration
	MaxAutoAttempts     int
	MaxLifetimeAttempts int
	PerSubscriptionCap  int
	// AllowInsecureURLs permits plain-HTTP subscription targets. Only enabled
	// in development and test environments.
	AllowInsecureURLs  bool
	SignatureTolerance time.Duration
}

type JobsConfig struct {
	WorkerCount   int
	SweepInterval time.Duration
}

type AlertsConfig struct {
	Enabled      bool
	ResendAPIKey string
	From         string
	To           string
	// MinInterval suppresses repeat alerts with the same subject. Zero
	// selects 15 minutes.
	MinInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Auth: AuthConfig{
			MasterSecret:   getEnv("GATEWAY_MASTER_SECRET", ""),
			AdminJWTExpiry: getEnvDuration("ADMIN_JWT_EXPIRY", 24*time.Hour),
			Issuer:         getEnv("ADMIN_JWT_ISSUER", "bistroline-gateway"),
			BcryptCost:     getEnvInt("API_KEY_BCRYPT_COST", 12),
		},
		RateLimit: RateLimitConfig{
			KeyIssuancePerHour: getEnvInt("RATE_LIMIT_KEY_ISSUANCE_PER_HOUR", 10),
			AdminPerMinute:     getEnvInt("RATE_LIMIT_ADMIN_PER_MINUTE", 300),
		},
		Webhooks: WebhooksConfig{
			DeliveryTimeout:     getEnvDuration("WEBHOOK_DELIVERY_TIMEOUT", 10*time.Second),
			MaxAutoAttempts:     getEnvInt("WEBHOOK_MAX_AUTO_ATTEMPTS", 3),
			MaxLifetimeAttempts: getEnvInt("WEBHOOK_MAX_LIFETIME_ATTEMPTS", 6),
			PerSubscriptionCap:  getEnvInt("WEBHOOK_PER_SUBSCRIPTION_CONCURRENCY", 2),
			AllowInsecureURLs:   getEnvBool("WEBHOOK_ALLOW_INSECURE_URLS", false),
			SignatureTolerance:  getEnvDuration("WEBHOOK_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		Jobs: JobsConfig{
			WorkerCount:   getEnvInt("JOB_WORKER_COUNT", 20),
			SweepInterval: getEnvDuration("JOB_SWEEP_INTERVAL", 5*time.Minute),
		},
		Alerts: AlertsConfig{
			Enabled:      getEnvBool("ALERTS_ENABLED", false),
			ResendAPIKey: getEnv("ALERTS_RESEND_API_KEY", ""),
			From:         getEnv("ALERTS_FROM", "gateway@bistroline.dev"),
			To:           getEnv("ALERTS_TO", ""),
			MinInterval:  getEnvDuration("ALERTS_MIN_INTERVAL", 15*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "gateway"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.MasterSecret == "" {
		return Config{}, fmt.Errorf("GATEWAY_MASTER_SECRET is required")
	}
	if len(cfg.Auth.MasterSecret) < 32 {
		return Config{}, fmt.Errorf("GATEWAY_MASTER_SECRET must be at least 32 characters")
	}
	if cfg.Webhooks.MaxLifetimeAttempts < cfg.Webhooks.MaxAutoAttempts {
		return Config{}, fmt.Errorf("WEBHOOK_MAX_LIFETIME_ATTEMPTS must be >= WEBHOOK_MAX_AUTO_ATTEMPTS")
	}
	if cfg.Environment == "development" || cfg.Environment == "test" {
		cfg.Webhooks.AllowInsecureURLs = true
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
