// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/sitecms/internal/middleware"
)

// PagesHandler serves the login and admin shell pages.
type PagesHandler struct {
	tmpl   *template.Template
	logger *slog.Logger
}

// NewPagesHandler parses templates/*.html from fsys.
func NewPagesHandler(fsys fs.FS, logger *slog.Logger) (*PagesHandler, error) {
	tmpl, err := template.ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &PagesHandler{tmpl: tmpl, logger: logger}, nil
}

// Login handles GET /login. Signed-in users go straight to their target.
func (h *PagesHandler) Login(w http.ResponseWriter, r *http.Request) {
	next := safeRedirect(r.URL.Query().Get("next"))
	if middleware.GetSession(r) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.render(w, r, "login.html", map[string]string{"Next": next})
}

// Admin handles GET /admin. Mount behind middleware.RequireSessionPage.
func (h *PagesHandler) Admin(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r)
	if s == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.render(w, r, "admin.html", map[string]string{"Username": s.Username, "Role": s.Role})
}

func (h *PagesHandler) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.ErrorContext(r.Context(), "rendering page failed", "page", name, "error", err)
	}
}

// safeRedirect keeps only local absolute paths.
func safeRedirect(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/admin"
	}
	return next
}
