// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/store"
)

// TestSecret is a session secret that passes config validation.
const TestSecret = "test-secret-key-32-bytes-long!!!"

// TestLogger creates a test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a logger that discards everything.
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary database file with migrations applied and
// returns the handle together with the file path. The database is closed
// when the test finishes.
func TestDB(t *testing.T) (*sqlx.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "app.db")

	db, err := store.NewDB(store.DriverModernc, dbPath)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.Migrate(db.DB); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	return db, dbPath
}
