// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"os"
	"testing"
	"time"
)

const testSecret = "test-secret-key-32-bytes-long!!!"

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	setEnv(t, "SESSION_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DBPath != "data/app.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "data/app.db")
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q, want %q", cfg.DBDriver, "sqlite")
	}
	if cfg.BackupDir != "data/backups" {
		t.Errorf("BackupDir = %q, want %q", cfg.BackupDir, "data/backups")
	}
	if cfg.UploadsDir != "public/uploads" {
		t.Errorf("UploadsDir = %q, want %q", cfg.UploadsDir, "public/uploads")
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 8080)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want %q", cfg.Env, "development")
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, 10*time.Minute)
	}
	if cfg.BackupSchedule != "" {
		t.Errorf("BackupSchedule = %q, want empty", cfg.BackupSchedule)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Clearenv()
	setEnv(t, "SESSION_SECRET", testSecret)
	setEnv(t, "DB_PATH", "/srv/site.db")
	setEnv(t, "DB_DRIVER", "sqlite3")
	setEnv(t, "SERVER_PORT", "3000")
	setEnv(t, "APP_ENV", "production")
	setEnv(t, "CORS_ORIGINS", "https://a.example,https://b.example")
	setEnv(t, "BACKUP_SCHEDULE", "@daily")
	setEnv(t, "BACKUP_KEEP", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DBPath != "/srv/site.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.DBDriver != "sqlite3" {
		t.Errorf("DBDriver = %q", cfg.DBDriver)
	}
	if cfg.ServerPort != 3000 {
		t.Errorf("ServerPort = %d", cfg.ServerPort)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.BackupSchedule != "@daily" || cfg.BackupKeep != 7 {
		t.Errorf("backup settings = %q/%d", cfg.BackupSchedule, cfg.BackupKeep)
	}
}

func TestLoad_RequiredSessionSecret(t *testing.T) {
	os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when SESSION_SECRET is not set")
	}
}

func TestLoad_SessionSecretTooShort(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"short", "short"},
		{"31_bytes", "1234567890123456789012345678901"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			setEnv(t, "SESSION_SECRET", tt.secret)

			if _, err := Load(); err == nil {
				t.Fatalf("Load() should fail with %d-byte secret", len(tt.secret))
			}
		})
	}
}

func TestLoad_WeakSecretRejected(t *testing.T) {
	for _, weak := range knownWeakSecrets {
		os.Clearenv()
		setEnv(t, "SESSION_SECRET", weak)

		if _, err := Load(); err == nil {
			t.Errorf("Load() should reject known weak secret %q", weak)
		}
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	os.Clearenv()
	setEnv(t, "SESSION_SECRET", testSecret)
	setEnv(t, "DB_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject unknown DB_DRIVER")
	}
}

func TestLoad_NegativeBackupKeep(t *testing.T) {
	os.Clearenv()
	setEnv(t, "SESSION_SECRET", testSecret)
	setEnv(t, "BACKUP_KEEP", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject negative BACKUP_KEEP")
	}
}

func TestConfig_Flags(t *testing.T) {
	cfg := Config{Env: "development"}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("development env flags wrong")
	}
	if cfg.UseRedisCache() || cfg.CaptchaEnabled() || cfg.GeoIPEnabled() || cfg.OffsiteEnabled() {
		t.Error("optional features should be disabled by default")
	}

	cfg = Config{
		RedisURL:      "redis://localhost:6379/0",
		CaptchaSecret: "secret",
		GeoIPDBPath:   "/geo.mmdb",
		S3Endpoint:    "s3.example.com",
		S3Bucket:      "backups",
	}
	if !cfg.UseRedisCache() || !cfg.CaptchaEnabled() || !cfg.GeoIPEnabled() || !cfg.OffsiteEnabled() {
		t.Error("optional features should be enabled when configured")
	}
}

func TestConfig_ServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 8080, "localhost:8080"},
		{"0.0.0.0", 3000, "0.0.0.0:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := Config{ServerHost: tt.host, ServerPort: tt.port}
			if got := cfg.ServerAddr(); got != tt.want {
				t.Errorf("ServerAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasMinimumEntropy(t *testing.T) {
	tests := []struct {
		secret string
		want   bool
	}{
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"aaaaaaaaaaaaaaaaAAAAAAAAAAAAAAAA", false},
		{"aaaaaaaaaaAAAAAAAAAA111111111111", true},
		{testSecret, true},
	}

	for _, tt := range tests {
		if got := hasMinimumEntropy(tt.secret); got != tt.want {
			t.Errorf("hasMinimumEntropy(%q) = %v, want %v", tt.secret, got, tt.want)
		}
	}
}
