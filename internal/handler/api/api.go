// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON API handlers for content, auth, settings,
// backups, uploads and admin statistics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/auth"
	"github.com/olegiv/sitecms/internal/backup"
	"github.com/olegiv/sitecms/internal/cache"
	"github.com/olegiv/sitecms/internal/captcha"
	"github.com/olegiv/sitecms/internal/csrf"
	"github.com/olegiv/sitecms/internal/geoip"
	"github.com/olegiv/sitecms/internal/middleware"
	"github.com/olegiv/sitecms/internal/ratelimit"
	"github.com/olegiv/sitecms/internal/resource"
	"github.com/olegiv/sitecms/internal/store"
	"github.com/olegiv/sitecms/internal/upload"
	"github.com/olegiv/sitecms/internal/util"
	"github.com/olegiv/sitecms/internal/validation"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

var idPattern = regexp.MustCompile(`^\d+$`)

// Deps are the collaborators of the API handlers.
type Deps struct {
	DB          *sqlx.DB
	Resources   *resource.Registry
	Sessions    *auth.Manager
	CSRF        *csrf.Service
	Limiter     *ratelimit.Limiter
	Captcha     *captcha.Verifier
	Backups     *backup.Manager
	Uploads     *upload.Store
	ContactInfo *cache.ContactInfo
	GeoIP       *geoip.Lookup
	Logger      *slog.Logger

	// Cache is the shared application cache. It is cleared after a restore.
	Cache cache.Cacher

	// AuthFlood, when set, throttles every /auth request per client IP
	// ahead of the per-operation limits.
	AuthFlood *middleware.GlobalRateLimiter

	// IsDev adds error details to 500 responses.
	IsDev bool
	// SecureCookies sets the Secure flag on cookies.
	SecureCookies bool
}

// Handler serves the JSON API.
type Handler struct {
	Deps
	queries   *store.Queries
	resources *resource.Service
	now       func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		Deps:      d,
		queries:   store.New(d.DB),
		resources: resource.NewService(d.DB),
		now:       time.Now,
	}
}

// Routes registers every API route on r, which is expected to be mounted at /api.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/csrf", h.CSRFToken)

	r.Route("/auth", func(r chi.Router) {
		if h.AuthFlood != nil {
			r.Use(h.AuthFlood.Middleware())
		}
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.Refresh)
		r.Get("/me", h.Me)
	})

	for _, name := range h.Resources.Names() {
		cfg, _ := h.Resources.Get(name)
		r.Route("/"+name, func(r chi.Router) {
			h.resourceRoutes(r, cfg)
		})
	}

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Get("/contact-info", h.ContactInfoHandler)

	r.Post("/upload", h.Upload)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireSession)

		r.Get("/dashboard", h.Dashboard)
		r.Get("/stats", h.Stats)

		r.Get("/images", h.ListImages)
		r.Delete("/images", h.DeleteImage)

		r.Get("/backups", h.ListBackups)
		r.Post("/backups", h.CreateBackup)
		r.Post("/backups/restore", h.RestoreBackup)
		r.Get("/backups/{id}", h.DownloadBackup)
		r.Delete("/backups/{id}", h.DeleteBackup)
	})
}

// writeJSON writes data as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeValidationError writes the 400 envelope with per-field details.
func writeValidationError(w http.ResponseWriter, errs validation.Errors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "Validation failed",
		"details": errs,
	})
}

// writeInternalError logs err and writes a generic 500. Details are only
// exposed in development.
func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.Logger.ErrorContext(r.Context(), msg, "error", err, "method", r.Method, "path", r.URL.Path)

	body := map[string]any{"error": "Internal server error"}
	if h.IsDev && err != nil {
		body["details"] = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// allow applies the rate limit of op to the caller and writes a 429 when
// exhausted.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, op string) bool {
	res := h.Limiter.AllowOperation(util.ClientIP(r), op)
	if res.Success {
		return true
	}

	retry := res.RetryAfter(h.now())
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retry))
	return false
}

// requireSession writes a 401 when the request is unauthenticated.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*auth.Session, bool) {
	s := middleware.GetSession(r)
	if s == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return s, true
}

// checkCSRF verifies the token from the JSON body field or, failing that,
// the header.
func (h *Handler) checkCSRF(w http.ResponseWriter, r *http.Request, body map[string]any) bool {
	var token string
	if body != nil {
		token, _ = body[csrf.BodyField].(string)
	}
	if token == "" {
		token = r.Header.Get(csrf.HeaderName)
	}

	if token == "" {
		writeError(w, http.StatusForbidden, "Missing CSRF token")
		return false
	}
	if !h.CSRF.Verify(token) {
		h.Logger.WarnContext(r.Context(), "invalid csrf token",
			"ip", util.ClientIP(r), "url", r.URL.Path, "category", "security")
		writeError(w, http.StatusForbidden, "Invalid CSRF token")
		return false
	}
	return true
}

// decodeBody decodes a JSON object body. An empty body yields an empty map
// when allowEmpty is set. Numbers are decoded as float64.
func decodeBody(w http.ResponseWriter, r *http.Request, allowEmpty bool) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var body map[string]any
	err := json.NewDecoder(r.Body).Decode(&body)
	switch {
	case errors.Is(err, io.EOF) && allowEmpty:
		return map[string]any{}, true
	case err != nil || body == nil:
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	return body, true
}

// withoutCSRF returns body minus the token field.
func withoutCSRF(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if k != csrf.BodyField {
			out[k] = v
		}
	}
	return out
}

// parseID reads the {id} URL parameter.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	if !idPattern.MatchString(raw) {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	return id, true
}

// queryInt parses a positive integer query parameter, returning def when
// missing or malformed.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return def
	}
	return v
}
