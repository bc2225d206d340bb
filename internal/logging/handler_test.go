// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/store"
	"github.com/olegiv/sitecms/internal/testutil"
)

// discardHandler is a slog.Handler that discards all logs.
type discardHandler struct{}

func (h discardHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h discardHandler) WithGroup(string) slog.Handler             { return h }

func newTestLogger(t *testing.T, level slog.Level) (*slog.Logger, *store.Queries) {
	t.Helper()
	db, _ := testutil.TestDB(t)
	q := store.New(db)
	return slog.New(NewEventLogHandlerWithLevel(discardHandler{}, q, level)), q
}

func listEvents(t *testing.T, q *store.Queries) []model.Event {
	t.Helper()
	events, err := q.ListEvents(context.Background(), 50)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	return events
}

func TestEventLogHandler_Levels(t *testing.T) {
	logger, q := newTestLogger(t, slog.LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("disk almost full")
	logger.Error("database connection failed")

	events := listEvents(t, q)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	levels := map[string]bool{}
	for _, e := range events {
		levels[e.Level] = true
	}
	if !levels[model.EventLevelWarning] || !levels[model.EventLevelError] {
		t.Errorf("levels = %v, want warning and error", levels)
	}
}

func TestEventLogHandler_CustomLevel(t *testing.T) {
	logger, q := newTestLogger(t, slog.LevelInfo)

	logger.Info("service started")

	events := listEvents(t, q)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Level != model.EventLevelInfo {
		t.Errorf("Level = %q, want %q", events[0].Level, model.EventLevelInfo)
	}
}

func TestEventLogHandler_SpecialAttributes(t *testing.T) {
	logger, q := newTestLogger(t, slog.LevelWarn)

	logger.Warn("failed login",
		"category", model.EventCategorySecurity,
		"user_id", int64(7),
		"ip", "203.0.113.9",
		"url", "/api/auth/login",
		"username", "admin",
		"attempts", 3,
	)

	events := listEvents(t, q)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Category != model.EventCategorySecurity {
		t.Errorf("Category = %q", e.Category)
	}
	if !e.UserID.Valid || e.UserID.Int64 != 7 {
		t.Errorf("UserID = %+v, want 7", e.UserID)
	}
	if e.IPAddress != "203.0.113.9" || e.RequestURL != "/api/auth/login" {
		t.Errorf("IPAddress/RequestURL = %q/%q", e.IPAddress, e.RequestURL)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v (%q)", err, e.Metadata)
	}
	if meta["username"] != "admin" || meta["attempts"] != float64(3) {
		t.Errorf("metadata = %v", meta)
	}
	if _, ok := meta["category"]; ok {
		t.Error("category should not be duplicated in metadata")
	}
}

func TestEventLogHandler_WithAttrs(t *testing.T) {
	logger, q := newTestLogger(t, slog.LevelWarn)

	logger.With("category", model.EventCategoryBackup, "component", "scheduler").
		Error("job failed", "job", "nightly")

	events := listEvents(t, q)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Category != model.EventCategoryBackup {
		t.Errorf("Category = %q", events[0].Category)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(events[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["component"] != "scheduler" || meta["job"] != "nightly" {
		t.Errorf("metadata = %v", meta)
	}
}

func TestEventLogHandler_WithGroup(t *testing.T) {
	logger, q := newTestLogger(t, slog.LevelWarn)

	logger.WithGroup("req").Warn("slow request", "path", "/api/posts")

	if events := listEvents(t, q); len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestEventLogHandler_SpecialCharactersInMetadata(t *testing.T) {
	logger, q := newTestLogger(t, slog.LevelWarn)

	logger.Warn("odd input", "value", "quote\" backslash\\ newline\n")

	events := listEvents(t, q)
	var meta map[string]string
	if err := json.Unmarshal([]byte(events[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["value"] != "quote\" backslash\\ newline\n" {
		t.Errorf("value = %q", meta["value"])
	}
}

func TestEventLogHandler_EmptyMetadata(t *testing.T) {
	logger, q := newTestLogger(t, slog.LevelWarn)

	logger.Warn("bare warning")

	events := listEvents(t, q)
	if events[0].Metadata != "{}" {
		t.Errorf("Metadata = %q, want {}", events[0].Metadata)
	}
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"Login failed", model.EventCategoryAuth},
		{"session refresh failed", model.EventCategoryAuth},
		{"backup created", model.EventCategoryBackup},
		{"image upload rejected", model.EventCategoryUpload},
		{"settings updated", model.EventCategoryConfig},
		{"cache unavailable", model.EventCategoryCache},
		{"rate limit exceeded", model.EventCategorySecurity},
		{"something else", model.EventCategorySystem},
	}

	for _, tt := range tests {
		if got := inferCategory(tt.msg); got != tt.want {
			t.Errorf("inferCategory(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestEventLevel(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, model.EventLevelInfo},
		{slog.LevelInfo, model.EventLevelInfo},
		{slog.LevelWarn, model.EventLevelWarning},
		{slog.LevelError, model.EventLevelError},
		{slog.LevelError + 4, model.EventLevelError},
	}

	for _, tt := range tests {
		if got := eventLevel(tt.level); got != tt.want {
			t.Errorf("eventLevel(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
