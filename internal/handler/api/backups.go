// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/sitecms/internal/backup"
	"github.com/olegiv/sitecms/internal/model"
)

// ListBackups returns every backup, newest first.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.Backups.List()
	if err != nil {
		h.writeInternalError(w, r, "listing backups failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

// CreateBackup snapshots the live database.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r, true)
	if !ok || !h.checkCSRF(w, r, body) {
		return
	}

	b, err := h.Backups.Create(r.Context())
	if err != nil {
		h.writeBackupError(w, r, "creating backup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "backup": b})
}

// RestoreBackup replaces the live database with {backupId}.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r, false)
	if !ok || !h.checkCSRF(w, r, body) {
		return
	}

	name, _ := body["backupId"].(string)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Backup ID is required")
		return
	}

	preRestore, err := h.Backups.Restore(r.Context(), name)
	if err != nil {
		h.writeBackupError(w, r, "restoring backup failed", err)
		return
	}

	h.resetCaches(r)

	h.Logger.WarnContext(r.Context(), "database restored",
		"backup", name, "pre_restore", preRestore, "user_id", sessionUserID(r),
		"category", model.EventCategoryBackup)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Database restored successfully",
		"currentBackup": preRestore,
	})
}

// resetCaches drops cached data derived from the replaced database.
func (h *Handler) resetCaches(r *http.Request) {
	ctx := r.Context()
	if h.Cache != nil {
		if err := h.Cache.Clear(ctx); err != nil {
			h.Logger.WarnContext(ctx, "clearing cache after restore failed",
				"error", err, "category", model.EventCategoryCache)
		}
	}
	if h.ContactInfo != nil {
		if err := h.ContactInfo.Invalidate(ctx); err != nil {
			h.Logger.WarnContext(ctx, "invalidating contact info cache failed",
				"error", err, "category", model.EventCategoryCache)
		}
	}
}

// DownloadBackup streams a backup file as an attachment.
func (h *Handler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	f, b, err := h.Backups.Open(chi.URLParam(r, "id"))
	if err != nil {
		h.writeBackupError(w, r, "opening backup failed", err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+b.Name+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(b.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.Logger.WarnContext(r.Context(), "streaming backup interrupted", "backup", b.Name, "error", err)
	}
}

// DeleteBackup removes one backup file.
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r, true)
	if !ok || !h.checkCSRF(w, r, body) {
		return
	}

	if err := h.Backups.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeBackupError(w, r, "deleting backup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Backup deleted successfully"})
}

func (h *Handler) writeBackupError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, backup.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "Invalid backup ID")
	case errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, "Backup not found")
	case errors.Is(err, backup.ErrSourceNotFound):
		writeError(w, http.StatusNotFound, "Database file not found")
	default:
		h.writeInternalError(w, r, msg, err)
	}
}
