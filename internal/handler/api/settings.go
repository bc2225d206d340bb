// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"net/http"

	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/ratelimit"
	"github.com/olegiv/sitecms/internal/validation"
)

// GetSettings returns every setting keyed by name.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.OpRead) {
		return
	}
	if _, ok := h.requireSession(w, r); !ok {
		return
	}

	settings, err := h.queries.ListSettings(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "listing settings failed", err)
		return
	}

	out := make(map[string]model.SettingView, len(settings))
	for _, s := range settings {
		out[s.Key] = model.SettingView{Value: s.Value, Label: s.Label, Type: s.Type}
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateSettings writes the submitted values. Keys without a stored row
// are ignored.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.OpWrite) {
		return
	}
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody(w, r, false)
	if !ok || !h.checkCSRF(w, r, body) {
		return
	}

	values, err := validation.Settings(withoutCSRF(body))
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeValidationError(w, verrs)
			return
		}
		h.writeInternalError(w, r, "validating settings failed", err)
		return
	}
	if len(values) == 0 {
		writeError(w, http.StatusBadRequest, "No updates provided")
		return
	}

	var updated int
	for key, value := range values {
		found, err := h.queries.UpdateSetting(r.Context(), key, value)
		if err != nil {
			h.writeInternalError(w, r, "updating setting failed", err)
			return
		}
		if found {
			updated++
		}
	}

	if h.ContactInfo != nil {
		if err := h.ContactInfo.Invalidate(r.Context()); err != nil {
			h.Logger.WarnContext(r.Context(), "invalidating contact info cache failed",
				"error", err, "category", model.EventCategoryCache)
		}
	}

	h.Logger.InfoContext(r.Context(), "settings updated",
		"updated", updated, "user_id", s.SubjectID, "url", r.URL.Path,
		"category", model.EventCategoryConfig)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

// ContactInfoHandler serves the public key/value contact details.
func (h *Handler) ContactInfoHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.OpRead) {
		return
	}

	info, err := h.ContactInfo.Get(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "loading contact info failed", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
