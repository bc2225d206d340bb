// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
	"your-secret-key-change-in-production",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	ServerHost string `env:"SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	DBPath   string `env:"DB_PATH" envDefault:"data/app.db"`
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"` // "sqlite" (modernc) or "sqlite3" (mattn, cgo)

	SessionSecret        string `env:"SESSION_SECRET,required"`
	AdminDefaultPassword string `env:"ADMIN_DEFAULT_PASSWORD" envDefault:"admin123"`

	UploadsDir string `env:"UPLOADS_DIR" envDefault:"public/uploads"`

	// Backups
	BackupDir      string `env:"BACKUP_DIR" envDefault:"data/backups"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`            // cron expression, empty disables
	BackupKeep     int    `env:"BACKUP_KEEP" envDefault:"0"` // 0 keeps every backup

	// Offsite backup copy (S3-compatible)
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3UseSSL    bool   `env:"S3_USE_SSL" envDefault:"true"`

	// Captcha required after the login rate limit is exhausted
	CaptchaSecret    string `env:"CAPTCHA_SECRET"`
	CaptchaVerifyURL string `env:"CAPTCHA_VERIFY_URL" envDefault:"https://hcaptcha.com/siteverify"`

	// Cache configuration
	RedisURL    string        `env:"REDIS_URL"`
	CachePrefix string        `env:"CACHE_PREFIX" envDefault:"sitecms:"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"10m"`

	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`
	TrustedOrigins []string `env:"TRUSTED_ORIGINS" envSeparator:","`

	GeoIPDBPath string `env:"GEOIP_DB_PATH"` // Path to GeoLite2-Country.mmdb file
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// CaptchaEnabled returns true if a captcha secret is configured.
func (c Config) CaptchaEnabled() bool {
	return c.CaptchaSecret != ""
}

// GeoIPEnabled returns true if GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// OffsiteEnabled returns true if an S3-compatible bucket is configured for backup copies.
func (c Config) OffsiteEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

// MinSessionSecretLength is the minimum required length for the session secret.
// HS256 keys shorter than the hash output weaken the signature.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, errors.New("SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	if !hasMinimumEntropy(cfg.SessionSecret) {
		slog.Warn("SESSION_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	switch cfg.DBDriver {
	case "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be \"sqlite\" or \"sqlite3\", got %q", cfg.DBDriver)
	}

	if cfg.BackupKeep < 0 {
		return nil, fmt.Errorf("BACKUP_KEEP must not be negative, got %d", cfg.BackupKeep)
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
