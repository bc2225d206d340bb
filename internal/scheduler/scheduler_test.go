// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	s := New(testLogger())
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cron == nil {
		t.Error("New() scheduler has nil cron")
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 5m", false},
		{"@daily", false},
		{"0 3 * * *", false},
		{"*/15 * * * 1-5", false},
		{"", true},
		{"every day", true},
		{"0 3 * *", true},
		{"61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(testLogger())

	if err := s.AddJob("sweep", "@every 5m", func() error { return nil }); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.AddJob("backup", "0 3 * * *", func() error { return errors.New("boom") }); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.AddJob("sweep", "@every 1m", func() error { return nil }); err == nil {
		t.Error("duplicate job name should fail")
	}
	if err := s.AddJob("bad", "not a schedule", func() error { return nil }); err == nil {
		t.Error("invalid schedule should fail")
	}

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("Jobs() returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].Name != "backup" || jobs[1].Name != "sweep" {
		t.Errorf("Jobs() not sorted by name: %+v", jobs)
	}
	if jobs[1].Schedule != "@every 5m" {
		t.Errorf("sweep schedule = %q", jobs[1].Schedule)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(testLogger())
	if err := s.AddJob("noop", "@every 1h", func() error { return nil }); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	s.Start()
	jobs := s.Jobs()
	if jobs[0].NextRun.IsZero() {
		t.Error("NextRun should be set once started")
	}
	s.Stop()
}
