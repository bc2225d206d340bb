// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/olegiv/sitecms/internal/store"
	"github.com/olegiv/sitecms/internal/util"
)

// BlogPost is the public rendering of a published post.
type BlogPost struct {
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	HTML        string     `json:"html"`
	Excerpt     string     `json:"excerpt"`
	Category    string     `json:"category"`
	Tags        string     `json:"tags"`
	PublishedAt *time.Time `json:"published_at"`
}

// BlogHandler renders published posts from Markdown.
type BlogHandler struct {
	queries *store.Queries
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	logger  *slog.Logger
}

// NewBlogHandler creates a blog handler.
func NewBlogHandler(db *sqlx.DB, logger *slog.Logger) *BlogHandler {
	return &BlogHandler{
		queries: store.New(db),
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:  bluemonday.UGCPolicy(),
		logger:  logger,
	}
}

// Post handles GET /blog/{slug}.
func (h *BlogHandler) Post(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !util.IsValidSlug(slug) {
		writeJSONError(w, http.StatusNotFound, "Post not found")
		return
	}

	post, err := h.queries.GetPublishedPostBySlug(r.Context(), slug)
	if err != nil {
		if store.IsNotFound(err) {
			writeJSONError(w, http.StatusNotFound, "Post not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "loading post failed", "slug", slug, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	html, err := h.Render(post.Content)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "rendering post failed", "slug", slug, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, BlogPost{
		Title:       post.Title,
		Slug:        post.Slug,
		HTML:        html,
		Excerpt:     post.Excerpt,
		Category:    post.Category,
		Tags:        post.Tags,
		PublishedAt: post.PublishedAt,
	})
}

// Render converts Markdown to sanitized HTML.
func (h *BlogHandler) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return h.policy.Sanitize(buf.String()), nil
}
