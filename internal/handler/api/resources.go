// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/sitecms/internal/middleware"
	"github.com/olegiv/sitecms/internal/ratelimit"
	"github.com/olegiv/sitecms/internal/resource"
	"github.com/olegiv/sitecms/internal/validation"
)

// Pagination is the list metadata.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// ListResponse is the paged list envelope.
type ListResponse struct {
	Items      []resource.Row `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

func (h *Handler) resourceRoutes(r chi.Router, cfg *resource.Config) {
	r.Get("/", h.listResource(cfg))
	r.Post("/", h.createResource(cfg))
	r.Delete("/bulk-delete", h.bulkDeleteResource(cfg))
	r.Put("/bulk-update", h.bulkUpdateResource(cfg))
	if cfg.IsColumn("order_index") {
		r.Put("/reorder", h.reorderResource(cfg))
	}
	r.Get("/{id}", h.getResource(cfg))
	r.Put("/{id}", h.updateResource(cfg))
	r.Delete("/{id}", h.deleteResource(cfg))
}

func (h *Handler) listResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpRead) {
			return
		}

		q := r.URL.Query()
		page, limit := resource.ClampPage(queryInt(r, "page", 1), queryInt(r, "limit", resource.DefaultLimit))
		params := resource.ListParams{
			Page:   page,
			Limit:  limit,
			Search: resource.TrimSearch(strings.TrimSpace(q.Get("search"))),
			Status: q.Get("status"),
			Public: middleware.GetSession(r) == nil,
		}

		rows, total, err := h.resources.Repository().List(r.Context(), cfg, params)
		if err != nil {
			h.writeInternalError(w, r, "listing "+cfg.Name+" failed", err)
			return
		}

		if q.Get("simple") == "true" {
			writeJSON(w, http.StatusOK, rows)
			return
		}

		writeJSON(w, http.StatusOK, ListResponse{
			Items: rows,
			Pagination: Pagination{
				Page:  page,
				Limit: limit,
				Total: total,
				Pages: (total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

func (h *Handler) getResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpRead) {
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		row, err := h.resources.Repository().Get(r.Context(), cfg, id, middleware.GetSession(r) == nil)
		if err != nil {
			if errors.Is(err, resource.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Item not found")
				return
			}
			h.writeInternalError(w, r, "getting "+cfg.Singular+" failed", err)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

func (h *Handler) createResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpWrite) {
			return
		}
		if _, ok := h.requireSession(w, r); !ok {
			return
		}
		body, ok := decodeBody(w, r, false)
		if !ok || !h.checkCSRF(w, r, body) {
			return
		}

		id, err := h.resources.Create(r.Context(), cfg, withoutCSRF(body))
		if err != nil {
			h.writeResourceError(w, r, cfg, "creating "+cfg.Singular+" failed", err)
			return
		}

		h.Logger.InfoContext(r.Context(), cfg.Singular+" created", "id", id, "user_id", middleware.GetSession(r).SubjectID)
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "success": true})
	}
}

func (h *Handler) updateResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpWrite) {
			return
		}
		if _, ok := h.requireSession(w, r); !ok {
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		body, ok := decodeBody(w, r, false)
		if !ok || !h.checkCSRF(w, r, body) {
			return
		}

		if err := h.resources.Update(r.Context(), cfg, id, withoutCSRF(body)); err != nil {
			h.writeResourceError(w, r, cfg, "updating "+cfg.Singular+" failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (h *Handler) deleteResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpWrite) {
			return
		}
		if _, ok := h.requireSession(w, r); !ok {
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		body, ok := decodeBody(w, r, true)
		if !ok || !h.checkCSRF(w, r, body) {
			return
		}

		if err := h.resources.Repository().Delete(r.Context(), cfg, id); err != nil {
			h.writeResourceError(w, r, cfg, "deleting "+cfg.Singular+" failed", err)
			return
		}

		h.Logger.InfoContext(r.Context(), cfg.Singular+" deleted", "id", id, "user_id", middleware.GetSession(r).SubjectID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (h *Handler) bulkDeleteResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpBulk) {
			return
		}
		if _, ok := h.requireSession(w, r); !ok {
			return
		}
		body, ok := decodeBody(w, r, false)
		if !ok || !h.checkCSRF(w, r, body) {
			return
		}

		ids, err := resource.ParseIDs(body["ids"])
		if err != nil {
			h.writeResourceError(w, r, cfg, "", err)
			return
		}

		n, err := h.resources.BulkDelete(r.Context(), cfg, ids)
		if err != nil {
			h.writeResourceError(w, r, cfg, "bulk deleting "+cfg.Name+" failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
	}
}

func (h *Handler) bulkUpdateResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpBulk) {
			return
		}
		if _, ok := h.requireSession(w, r); !ok {
			return
		}
		body, ok := decodeBody(w, r, false)
		if !ok || !h.checkCSRF(w, r, body) {
			return
		}

		ids, err := resource.ParseIDs(body["ids"])
		if err != nil {
			h.writeResourceError(w, r, cfg, "", err)
			return
		}
		updates, _ := body["updates"].(map[string]any)

		n, err := h.resources.BulkUpdate(r.Context(), cfg, ids, updates)
		if err != nil {
			h.writeResourceError(w, r, cfg, "bulk updating "+cfg.Name+" failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
	}
}

func (h *Handler) reorderResource(cfg *resource.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, ratelimit.OpBulk) {
			return
		}
		if _, ok := h.requireSession(w, r); !ok {
			return
		}
		body, ok := decodeBody(w, r, false)
		if !ok || !h.checkCSRF(w, r, body) {
			return
		}

		items, ok := parseOrderItems(body["items"])
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid ID format")
			return
		}

		n, err := h.resources.Reorder(r.Context(), cfg, items)
		if err != nil {
			h.writeResourceError(w, r, cfg, "reordering "+cfg.Name+" failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
	}
}

// parseOrderItems decodes [{id, order_index}] entries holding whole numbers.
func parseOrderItems(raw any) ([]resource.OrderItem, bool) {
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	items := make([]resource.OrderItem, 0, len(list))
	for _, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		id, ok1 := wholeNumber(m["id"])
		idx, ok2 := wholeNumber(m["order_index"])
		if !ok1 || !ok2 {
			return nil, false
		}
		items = append(items, resource.OrderItem{ID: id, OrderIndex: int(idx)})
	}
	return items, true
}

func wholeNumber(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// writeResourceError maps pipeline errors to responses.
func (h *Handler) writeResourceError(w http.ResponseWriter, r *http.Request, cfg *resource.Config, msg string, err error) {
	var verrs validation.Errors
	var fieldErr *resource.InvalidFieldError

	switch {
	case errors.As(err, &verrs):
		writeValidationError(w, verrs)
	case errors.As(err, &fieldErr):
		writeError(w, http.StatusBadRequest, "Invalid update field: "+fieldErr.Field)
	case errors.Is(err, resource.ErrInvalidSelection):
		writeError(w, http.StatusBadRequest, "Invalid selection (max 100 items)")
	case errors.Is(err, resource.ErrInvalidIDFormat):
		writeError(w, http.StatusBadRequest, "Invalid ID format")
	case errors.Is(err, resource.ErrNoUpdates):
		writeError(w, http.StatusBadRequest, "No updates provided")
	case errors.Is(err, resource.ErrNotFound):
		writeError(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, resource.ErrSlugConflict):
		writeError(w, http.StatusConflict, "A "+cfg.Singular+" with this slug already exists")
	case errors.Is(err, resource.ErrDuplicate):
		writeError(w, http.StatusConflict, "A record with this information already exists")
	case errors.Is(err, resource.ErrInUse):
		message := cfg.InUseMessage
		if message == "" {
			message = "Item is in use"
		}
		writeError(w, http.StatusConflict, message)
	default:
		h.writeInternalError(w, r, msg, err)
	}
}
