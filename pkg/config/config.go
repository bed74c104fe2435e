// Package config loads service configuration from the environment and
// the signing-domain profile from YAML.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port         string
	LogLevel     string
	DatabaseURL  string // Postgres policy storage; empty means in-memory
	RedisAddr    string // Redis nonce ledger; empty falls through to SQLite
	SQLitePath   string // SQLite nonce ledger; empty means in-memory
	DomainFile   string // signing-domain profile YAML
	VerifyingKey string // Groth16 verification key path
	ProofTimeout time.Duration
	RelayerAddr  string // optional allow-listed relayer, hex; empty means open
	JWTSecret    string
	RateRPS      float64
	RateBurst    int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:         envOr("PORT", "8080"),
		LogLevel:     envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),
		DomainFile:   envOr("DOMAIN_PROFILE", "domain.yaml"),
		VerifyingKey: envOr("VERIFYING_KEY", "verifying.key"),
		ProofTimeout: envDuration("PROOF_TIMEOUT", 10*time.Second),
		RelayerAddr:  os.Getenv("RELAYER_ADDR"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		RateRPS:      envFloat("RATE_RPS", 20),
		RateBurst:    envInt("RATE_BURST", 40),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
