// Package config provides configuration management for Dinex.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// DefaultSecretKey is used when LICENSE_SECRET_KEY is unset. Licenses signed
// with it are forgeable by anyone reading this source, so the server logs a
// warning at startup whenever the fallback is active.
const DefaultSecretKey = "dinex-license-secret-key-change-me"

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment       Environment
	Port              int
	DatabaseURL       string
	SecretKey         string
	SecretKeyFallback bool // true when SecretKey is the built-in default
	AdminToken        string
	AllowedOrigins    []string
	RateLimitRequests int           // requests allowed per period per client IP
	RateLimitPeriod   time.Duration // rate limiter window (default: 1m)
	RedisURL          string        // optional shared rate limiter backend
	ExpirySweepSpec   string        // cron spec for the expired-license report
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	port := getEnvInt("PORT", 8080)
	if port <= 0 || port > 65535 {
		port = 8080
	}

	secretKey := os.Getenv("LICENSE_SECRET_KEY")
	fallback := secretKey == ""
	if fallback {
		secretKey = DefaultSecretKey
	}

	origins := splitAndTrim(os.Getenv("ALLOWED_ORIGINS"))

	rateLimitRequests := getEnvInt("RATE_LIMIT_REQUESTS", 60)
	if rateLimitRequests <= 0 {
		rateLimitRequests = 60
	}

	ratePeriod := getEnvDuration("RATE_LIMIT_PERIOD", time.Minute)
	if ratePeriod <= 0 {
		ratePeriod = time.Minute
	}

	sweepSpec := os.Getenv("EXPIRY_SWEEP_SPEC")
	if sweepSpec == "" {
		sweepSpec = "0 3 * * *"
	}

	return ServerConfig{
		Environment:       env,
		Port:              port,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SecretKey:         secretKey,
		SecretKeyFallback: fallback,
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		AllowedOrigins:    origins,
		RateLimitRequests: rateLimitRequests,
		RateLimitPeriod:   ratePeriod,
		RedisURL:          os.Getenv("REDIS_URL"),
		ExpirySweepSpec:   sweepSpec,
	}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration from an environment variable, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
