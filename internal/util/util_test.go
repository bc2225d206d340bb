// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello World", "hello-world"},
		{"  Leading and trailing  ", "leading-and-trailing"},
		{"Café au lait", "cafe-au-lait"},
		{"Привет мир", "privet-mir"},
		{"Multiple   spaces\tand\ttabs", "multiple-spaces-and-tabs"},
		{"Special!@#$%chars", "specialchars"},
		{"already-a-slug", "already-a-slug"},
		{"--dashes--everywhere--", "dashes-everywhere"},
		{"2026 Roadmap: Q1", "2026-roadmap-q1"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlugify_Length(t *testing.T) {
	got := Slugify(strings.Repeat("ab ", 150))
	if len(got) > MaxSlugLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxSlugLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("truncated slug ends with hyphen: %q", got)
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"hello-world", true},
		{"post1", true},
		{"", false},
		{"-leading", false},
		{"trailing-", false},
		{"double--hyphen", false},
		{"Upper", false},
		{"under_score", false},
	}

	for _, tt := range tests {
		if got := IsValidSlug(tt.slug); got != tt.want {
			t.Errorf("IsValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"forwarded for first entry", "203.0.113.5, 10.0.0.1", "", "10.0.0.2:1234", "203.0.113.5"},
		{"real ip", "", "198.51.100.7", "10.0.0.2:1234", "198.51.100.7"},
		{"remote addr strips port", "", "", "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6 remote addr", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr without port", "", "", "192.0.2.9", "192.0.2.9"},
		{"nothing", "", "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeUploadName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my photo (1).png", "my_photo__1_.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\pic.webp`, "pic.webp"},
		{"name...jpg", "name.jpg"},
	}

	for _, tt := range tests {
		if got := SanitizeUploadName(tt.input); got != tt.want {
			t.Errorf("SanitizeUploadName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	long := SanitizeUploadName(strings.Repeat("a", 300) + ".jpg")
	if len(long) != MaxSanitizedNameLength {
		t.Errorf("long name length = %d, want %d", len(long), MaxSanitizedNameLength)
	}
}

func TestIsPlainFileName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"app-2026-01-01-00-00-00.db", true},
		{"", false},
		{".", false},
		{"../app.db", false},
		{"dir/app.db", false},
		{`dir\app.db`, false},
		{"a..db", false},
	}

	for _, tt := range tests {
		if got := IsPlainFileName(tt.name); got != tt.want {
			t.Errorf("IsPlainFileName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSafeJoinPath(t *testing.T) {
	base := t.TempDir()

	got, err := SafeJoinPath(base, "images", "2026-01", "a.jpg")
	if err != nil {
		t.Fatalf("SafeJoinPath() error = %v", err)
	}
	if want := filepath.Join(base, "images", "2026-01", "a.jpg"); got != want {
		t.Errorf("SafeJoinPath() = %q, want %q", got, want)
	}

	if _, err := SafeJoinPath(base, "..", "outside"); err == nil {
		t.Error("SafeJoinPath() should reject traversal")
	}
	if err := ValidatePathWithinBase(base, base+"-evil"); err == nil {
		t.Error("sibling directory with shared prefix must be rejected")
	}
}
