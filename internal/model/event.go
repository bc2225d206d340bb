// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"database/sql"
	"time"
)

// Event levels
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories
const (
	EventCategoryAuth     = "auth"
	EventCategoryContent  = "content"
	EventCategoryConfig   = "config"
	EventCategoryBackup   = "backup"
	EventCategoryUpload   = "upload"
	EventCategorySecurity = "security"
	EventCategorySystem   = "system"
	EventCategoryCache    = "cache"
)

// Event represents an audit log entry.
type Event struct {
	ID         int64         `db:"id"`
	Level      string        `db:"level"`
	Category   string        `db:"category"`
	Message    string        `db:"message"`
	UserID     sql.NullInt64 `db:"user_id"`
	Metadata   string        `db:"metadata"` // JSON object
	IPAddress  string        `db:"ip_address"`
	RequestURL string        `db:"request_url"`
	CreatedAt  time.Time     `db:"created_at"`
}
