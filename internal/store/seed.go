// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/auth"
	"github.com/olegiv/sitecms/internal/model"
)

// DefaultAdminUsername is the account created on first start.
const DefaultAdminUsername = "admin"

// MinAdminPasswordLength is the length below which the seeded password is reported as weak.
const MinAdminPasswordLength = 8

// Seed creates the default admin user when the users table is empty.
func Seed(ctx context.Context, db *sqlx.DB, adminPassword string, logger *slog.Logger) error {
	queries := New(db)

	count, err := queries.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping admin seed", "count", count)
		return nil
	}

	if len(adminPassword) < MinAdminPasswordLength {
		logger.Warn("default admin password is too weak, set ADMIN_DEFAULT_PASSWORD",
			"category", model.EventCategorySecurity)
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	id, err := queries.CreateUser(ctx, DefaultAdminUsername, passwordHash, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	logger.Info("created default admin user", "id", id, "username", DefaultAdminUsername)
	return nil
}
