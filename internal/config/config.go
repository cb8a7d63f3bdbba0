// Package config loads process configuration from the environment, the way
// the teacher's internal/config package does: a flat struct, a single Load(),
// no framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Env         string // "development" | "production"
	DatabaseURL string
	Port        string
	SentryDSN   string

	// Token signing (spec.md §4.4: process-wide HMAC-SHA256 secret).
	SigningKey string

	// TOTP/backup-code secret-at-rest encryption (spec.md §9).
	DataEncryptionKey   string // hex-encoded 32 bytes
	DataEncryptionKeyID string

	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	ChallengeTokenTTL   time.Duration
	DeviceTrustTokenTTL time.Duration

	BcryptCost int

	LockoutThreshold int
	LockoutDuration  time.Duration

	TOTPIssuer string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	AllowPublicRegistration bool
	AppURL                  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Load reads configuration from environment variables, applying the same
// defaults the spec names (§6, §9): 30 min access, 7 day refresh, 5 min
// challenge, 7 day device-trust, lockout threshold 5 / duration 15 min.
func Load() (Config, error) {
	cfg := Config{
		Env:                 getEnv("APP_ENV", "development"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Port:                getEnv("PORT", "8080"),
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		SigningKey:          os.Getenv("SIGNING_KEY"),
		DataEncryptionKey:   os.Getenv("DATA_ENCRYPTION_KEY"),
		DataEncryptionKeyID: getEnv("DATA_ENCRYPTION_KEY_ID", "v1"),
		AccessTokenTTL:      getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL:     getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ChallengeTokenTTL:   getEnvDuration("CHALLENGE_TOKEN_TTL", 5*time.Minute),
		DeviceTrustTokenTTL: getEnvDuration("DEVICE_TRUST_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:          getEnvInt("BCRYPT_COST", 12),
		LockoutThreshold:    getEnvInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:     getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),
		TOTPIssuer:          getEnv("TOTP_ISSUER", "Solstice"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:            getEnv("SMTP_FROM", "no-reply@solstice.example"),
		AllowPublicRegistration: getEnvAsBool("ALLOW_PUBLIC_REGISTRATION", true),
		AppURL:                  getEnv("APP_URL", "https://id.solstice.example"),
		GoogleClientID:          os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:      os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:       os.Getenv("GOOGLE_REDIRECT_URL"),
	}

	if cfg.Env == "production" {
		if cfg.SigningKey == "" {
			return cfg, fmt.Errorf("SIGNING_KEY is required in production")
		}
		if cfg.DataEncryptionKey == "" {
			return cfg, fmt.Errorf("DATA_ENCRYPTION_KEY is required in production")
		}
	}

	return cfg, nil
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

func getEnvInt(name string, defaultVal int) int {
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

func getEnvDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
