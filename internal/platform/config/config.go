package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	OnboardingRoute string
	PublicBaseURL   string
	AllowedOrigins  []string
	WebhookSecret   string
	IdleSessionTTL  time.Duration
	PollInterval    time.Duration

	Redis     RedisConfig
	Postgres  PostgresConfig
	KYC       ProviderConfig
	Review    ProviderConfig
	S3        S3Config
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

// RateLimitConfig sets per-provider hourly quotas for the endpoints that
// call upstream services.
type RateLimitConfig struct {
	Disabled                bool
	IdentitySessionsPerHour int
	LicenseUploadsPerHour   int
}

// RedisConfig holds connection settings for the identity session marker store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds the license submission and profile database settings.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ProviderConfig describes one upstream verification collaborator.
type ProviderConfig struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	FailureThreshold int
}

// S3Config describes the license document bucket. An empty bucket keeps
// documents in memory.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// KafkaConfig enables completion events when Brokers is set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:            getEnv("ONBOARDING_ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSigningKey:   os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:       getEnv("JWT_ISSUER", "marketplace-identity"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "onboarding-gateway"),
		OnboardingRoute: getEnv("ONBOARDING_ROUTE", "/onboarding"),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		AllowedOrigins:  splitList(os.Getenv("ALLOWED_ORIGINS")),
		WebhookSecret:   os.Getenv("REVIEW_WEBHOOK_SECRET"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		KYC: ProviderConfig{
			BaseURL: os.Getenv("KYC_BASE_URL"),
			APIKey:  os.Getenv("KYC_API_KEY"),
		},
		Review: ProviderConfig{
			BaseURL: os.Getenv("REVIEW_BASE_URL"),
			APIKey:  os.Getenv("REVIEW_API_KEY"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("LICENSE_BUCKET"),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "onboarding.completed"),
		},
		RateLimit: RateLimitConfig{
			Disabled: os.Getenv("RATE_LIMIT_DISABLED") == "true",
		},
	}

	var err error
	if cfg.IdleSessionTTL, err = getDuration("IDLE_SESSION_TTL", 30*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.PollInterval, err = getDuration("KYC_POLL_INTERVAL", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.KYC.Timeout, err = getDuration("KYC_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Review.Timeout, err = getDuration("REVIEW_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.KYC.FailureThreshold, err = getInt("KYC_BREAKER_THRESHOLD", 5); err != nil {
		return cfg, err
	}
	if cfg.Review.FailureThreshold, err = getInt("REVIEW_BREAKER_THRESHOLD", 5); err != nil {
		return cfg, err
	}
	if cfg.RateLimit.IdentitySessionsPerHour, err = getInt("RATE_LIMIT_IDENTITY_SESSIONS_PER_HOUR", 10); err != nil {
		return cfg, err
	}
	if cfg.RateLimit.LicenseUploadsPerHour, err = getInt("RATE_LIMIT_LICENSE_UPLOADS_PER_HOUR", 20); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports settings the service cannot start without.
func (c Server) Validate() error {
	var missing []string
	if c.JWTSigningKey == "" {
		missing = append(missing, "JWT_SIGNING_KEY")
	}
	if c.KYC.BaseURL == "" {
		missing = append(missing, "KYC_BASE_URL")
	}
	if c.Review.BaseURL == "" {
		missing = append(missing, "REVIEW_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IdentityReturnURL is the absolute URL the verification provider redirects to.
func (c Server) IdentityReturnURL() string {
	return c.PublicBaseURL + "/onboarding/identity/return"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
