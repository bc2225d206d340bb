// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/sitecms/internal/auth"
	"github.com/olegiv/sitecms/internal/middleware"
	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/resource"
	"github.com/olegiv/sitecms/internal/testutil"
)

func assertStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status = %d; want %d", got, want)
	}
}

func adminSession() *auth.Session {
	return &auth.Session{SubjectID: 1, Username: "admin", Role: model.RoleAdmin, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestHealthHandler_Health(t *testing.T) {
	db, _ := testutil.TestDB(t)
	h := NewHealthHandler(db, t.TempDir(), "v1.2.3")

	tests := []struct {
		name       string
		session    *auth.Session
		query      string
		wantChecks bool
		wantSystem bool
	}{
		{"anonymous", nil, "", false, false},
		{"non-admin", &auth.Session{SubjectID: 2, Role: model.RoleUser}, "", false, false},
		{"admin", adminSession(), "", true, false},
		{"admin verbose", adminSession(), "?verbose=true", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health"+tt.query, nil)
			if tt.session != nil {
				req = middleware.WithSession(req, tt.session)
			}
			w := httptest.NewRecorder()
			h.Health(w, req)

			assertStatus(t, w.Code, http.StatusOK)

			var resp map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp["status"] != statusHealthy {
				t.Errorf("status = %v; want healthy", resp["status"])
			}
			if _, ok := resp["checks"]; ok != tt.wantChecks {
				t.Errorf("checks present = %v; want %v", ok, tt.wantChecks)
			}
			if _, ok := resp["system"]; ok != tt.wantSystem {
				t.Errorf("system present = %v; want %v", ok, tt.wantSystem)
			}
			if tt.wantChecks && resp["version"] != "v1.2.3" {
				t.Errorf("version = %v; want v1.2.3", resp["version"])
			}
		})
	}
}

func TestHealthHandler_LivenessAndReadiness(t *testing.T) {
	db, _ := testutil.TestDB(t)
	h := NewHealthHandler(db, t.TempDir(), "dev")

	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assertStatus(t, w.Code, http.StatusOK)

	w = httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assertStatus(t, w.Code, http.StatusOK)

	_ = db.Close()
	w = httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assertStatus(t, w.Code, http.StatusServiceUnavailable)
	if strings.Contains(w.Body.String(), "message") {
		t.Error("anonymous readiness response should not include error details")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestBlogHandler_Post(t *testing.T) {
	db, _ := testutil.TestDB(t)
	svc := resource.NewService(db)
	ctx := context.Background()

	_, err := svc.Create(ctx, resource.Posts(), map[string]any{
		"title":     "Markdown Post",
		"content":   "# Heading\n\nSome **bold** text.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<img src=x onerror=alert(1)>",
		"published": true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = svc.Create(ctx, resource.Posts(), map[string]any{"title": "Draft", "content": "hidden"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h := NewBlogHandler(db, testutil.TestLoggerSilent())
	r := chi.NewRouter()
	r.Get("/blog/{slug}", h.Post)

	tests := []struct {
		name string
		slug string
		want int
	}{
		{"published", "markdown-post", http.StatusOK},
		{"draft", "draft", http.StatusNotFound},
		{"missing", "nope", http.StatusNotFound},
		{"invalid slug", "Bad_Slug", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/blog/"+tt.slug, nil))
			assertStatus(t, w.Code, tt.want)
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/blog/markdown-post", nil))
	var post BlogPost
	if err := json.Unmarshal(w.Body.Bytes(), &post); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, want := range []string{"<h1", "<strong>bold</strong>", "<table>"} {
		if !strings.Contains(post.HTML, want) {
			t.Errorf("html missing %q: %s", want, post.HTML)
		}
	}
	if strings.Contains(post.HTML, "onerror") {
		t.Errorf("html not sanitized: %s", post.HTML)
	}
	if post.PublishedAt == nil {
		t.Error("published_at should be set")
	}
}

func TestPagesHandler(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/login.html": {Data: []byte(`login next={{.Next}}`)},
		"templates/admin.html": {Data: []byte(`hello {{.Username}}`)},
	}
	h, err := NewPagesHandler(fsys, testutil.TestLoggerSilent())
	if err != nil {
		t.Fatalf("NewPagesHandler: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/login", h.Login)
	r.With(middleware.RequireSessionPage).Get("/admin", h.Admin)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assertStatus(t, w.Code, http.StatusSeeOther)
	if loc := w.Header().Get("Location"); loc != "/login?next=%2Fadmin" {
		t.Errorf("Location = %q", loc)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, middleware.WithSession(httptest.NewRequest(http.MethodGet, "/admin", nil), adminSession()))
	assertStatus(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), "hello admin") {
		t.Errorf("body = %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login?next=//evil.example", nil))
	assertStatus(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), "next=/admin") {
		t.Errorf("body = %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, middleware.WithSession(httptest.NewRequest(http.MethodGet, "/login?next=/admin", nil), adminSession()))
	assertStatus(t, w.Code, http.StatusSeeOther)
}
