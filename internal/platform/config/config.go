// Package config loads process configuration from environment variables,
// the same way the teacher's internal/config package does, extended to
// cover every variable spec.md §6 and SPEC_FULL.md §6 name.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every env-driven setting shared across the services in
// this repository. A given cmd/*/main.go only reads the fields it needs.
type Config struct {
	Env string // APP_ENV: development | production

	DatabaseURL string
	RedisURL    string // optional; distributed rate-limit/event-bus features degrade gracefully without it

	JWTPrivateKeyPEM string
	JWTPublicKeyPEM  string
	JWTIssuer        string
	JWTExpiration    time.Duration

	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int

	LockoutThreshold        int
	LockoutDuration         time.Duration
	TenantSecretKeyHex      string
	AllowPublicRegistration bool

	ConsumerHandlerTimeout time.Duration
	EventBusPrefetch       int
	EventBusConcurrency    int

	DiscoveryPollInterval time.Duration
	BodyLimitBytes        int64
	RequestTimeout        time.Duration

	SentryDSN string
}

// Load reads configuration from the environment, applying the defaults
// spec.md §6 specifies.
func Load() Config {
	env := getEnv("APP_ENV", "development")

	return Config{
		Env:         env,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTPrivateKeyPEM: os.Getenv("JWT_PRIVATE_KEY"),
		JWTPublicKeyPEM:  os.Getenv("JWT_PUBLIC_KEY"),
		JWTIssuer:        getEnv("JWT_ISSUER", "hospital-system"),
		JWTExpiration:    time.Duration(getEnvAsInt("JWT_EXPIRATION_SECONDS", 86400)) * time.Second,

		RateLimitEnabled: getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvAsInt("RATE_LIMIT_RPM", 100),
		RateLimitBurst:   getEnvAsInt("RATE_LIMIT_BURST", 20),

		LockoutThreshold:        getEnvAsInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:         time.Duration(getEnvAsInt("LOCKOUT_DURATION_MINUTES", 30)) * time.Minute,
		TenantSecretKeyHex:      os.Getenv("TENANT_SECRET_KEY"),
		AllowPublicRegistration: getEnvAsBool("ALLOW_PUBLIC_REGISTRATION", false),

		ConsumerHandlerTimeout: time.Duration(getEnvAsInt("CONSUMER_HANDLER_TIMEOUT_SECONDS", 30)) * time.Second,
		EventBusPrefetch:       getEnvAsInt("EVENTBUS_PREFETCH", 10),
		EventBusConcurrency:    getEnvAsInt("EVENTBUS_CONCURRENCY", 4),

		DiscoveryPollInterval: time.Duration(getEnvAsInt("DISCOVERY_POLL_INTERVAL_SECONDS", 10)) * time.Second,
		BodyLimitBytes:        int64(getEnvAsInt("BODY_LIMIT_MB", 2)) * 1024 * 1024,
		RequestTimeout:        time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,

		SentryDSN: os.Getenv("SENTRY_DSN"),
	}
}

// RequireJWTSecret returns an error when JWT_PRIVATE_KEY is absent, in any
// environment; the caller decides whether that is fatal.
// JWT_SECRET is required per spec.md §6 regardless of symmetric/asymmetric choice.
func (c Config) RequireJWTSecret() error {
	if c.JWTPrivateKeyPEM == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY is required")
	}
	return nil
}

func getEnv(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
