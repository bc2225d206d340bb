// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/sitecms/internal/auth"
	"github.com/olegiv/sitecms/internal/backup"
	"github.com/olegiv/sitecms/internal/cache"
	"github.com/olegiv/sitecms/internal/captcha"
	"github.com/olegiv/sitecms/internal/csrf"
	"github.com/olegiv/sitecms/internal/imaging"
	"github.com/olegiv/sitecms/internal/middleware"
	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/ratelimit"
	"github.com/olegiv/sitecms/internal/resource"
	"github.com/olegiv/sitecms/internal/store"
	"github.com/olegiv/sitecms/internal/testutil"
	"github.com/olegiv/sitecms/internal/upload"
)

const testPassword = "correct-horse-battery"

type testEnv struct {
	handler  *Handler
	router   http.Handler
	dbPath   string
	user     model.User
	cookie   *http.Cookie
	csrf     string
	sessions *auth.Manager
}

type envOption func(*Deps)

func withCaptcha(v *captcha.Verifier) envOption {
	return func(d *Deps) { d.Captcha = v }
}

func withLimits(limits map[string]ratelimit.Limit) envOption {
	return func(d *Deps) { d.Limiter = ratelimit.NewWithLimits(limits) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, dbPath := testutil.TestDB(t)
	logger := testutil.TestLoggerSilent()
	queries := store.New(db)

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	id, err := queries.CreateUser(context.Background(), "admin", hash, model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	user, err := queries.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}

	sessions := auth.NewManager(testutil.TestSecret, queries, logger)
	csrfService := csrf.NewService(testutil.TestSecret)
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	t.Cleanup(func() { _ = mem.Close() })

	deps := Deps{
		DB:          db,
		Resources:   resource.Builtin(),
		Sessions:    sessions,
		CSRF:        csrfService,
		Limiter:     ratelimit.New(),
		Captcha:     captcha.NewVerifier("", "", logger),
		Backups:     backup.NewManager(dbPath, filepath.Join(t.TempDir(), "backups"), store.NewLiveDB(db), logger),
		Uploads:     upload.NewStore(t.TempDir(), imaging.NewProcessor(50, 50, 80), logger),
		ContactInfo: cache.NewContactInfo(mem, queries, time.Minute),
		Logger:      logger,
		Cache:       mem,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	h := NewHandler(deps)
	r := chi.NewRouter()
	r.Use(middleware.LoadSession(sessions))
	r.Route("/api", h.Routes)

	token, err := sessions.CreateSession(user)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	csrfToken, err := csrfService.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	return &testEnv{
		handler:  h,
		router:   r,
		dbPath:   dbPath,
		user:     user,
		cookie:   &http.Cookie{Name: middleware.SessionCookieName, Value: token},
		csrf:     csrfToken,
		sessions: sessions,
	}
}

// do sends a JSON request. body may be nil. Authenticated requests carry
// the session cookie.
func (e *testEnv) do(t *testing.T, method, target string, body any, authenticated bool) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.AddCookie(e.cookie)
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// withToken returns a copy of body carrying the CSRF token.
func (e *testEnv) withToken(body map[string]any) map[string]any {
	out := map[string]any{"csrfToken": e.csrf}
	for k, v := range body {
		out[k] = v
	}
	return out
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return m
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	assertStatus(t, w, status)
	if got := decodeJSON(t, w)["error"]; got != message {
		t.Errorf("error = %q, want %q", got, message)
	}
}

func jsonUnmarshal(w *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}
