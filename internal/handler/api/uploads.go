// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"net/http"

	"github.com/olegiv/sitecms/internal/middleware"
	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/ratelimit"
	"github.com/olegiv/sitecms/internal/upload"
)

// multipartOverhead is the slack allowed on top of upload.MaxSize for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

// uploadMessages maps store errors to client messages.
var uploadMessages = map[error]string{
	upload.ErrInvalidType:      "Invalid file type. Only JPEG, PNG, WebP, and GIF images are allowed.",
	upload.ErrTooLarge:         "File too large. Maximum size is 10MB.",
	upload.ErrTooSmall:         "File too small. Minimum size is 100 bytes.",
	upload.ErrInvalidName:      "Invalid filename",
	upload.ErrSignature:        "File content doesn't match declared type",
	upload.ErrInvalidExtension: "Invalid file extension",
	upload.ErrCorrupt:          "Invalid or corrupted image",
}

// Upload stores one image from the multipart field "file".
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.OpUpload) {
		return
	}
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if !h.checkCSRF(w, r, nil) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxSize+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, uploadMessages[upload.ErrTooLarge])
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() { _ = file.Close() }()

	res, err := h.Uploads.Save(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		for target, msg := range uploadMessages {
			if errors.Is(err, target) {
				writeError(w, http.StatusBadRequest, msg)
				return
			}
		}
		h.writeInternalError(w, r, "saving upload failed", err)
		return
	}

	h.Logger.InfoContext(r.Context(), "image uploaded",
		"path", res.Path, "size", res.Size, "user_id", s.SubjectID, "category", model.EventCategoryUpload)
	writeJSON(w, http.StatusOK, res)
}

// ListImages returns the image library, newest first.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.Uploads.List()
	if err != nil {
		h.writeInternalError(w, r, "listing images failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

// DeleteImage removes {imagePath} and its thumbnail.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r, false)
	if !ok || !h.checkCSRF(w, r, body) {
		return
	}

	imagePath, _ := body["imagePath"].(string)
	if err := h.Uploads.Delete(imagePath); err != nil {
		switch {
		case errors.Is(err, upload.ErrInvalidPath):
			writeError(w, http.StatusBadRequest, "Invalid image path")
		case errors.Is(err, upload.ErrNotFound):
			writeError(w, http.StatusNotFound, "Image not found")
		default:
			h.writeInternalError(w, r, "deleting image failed", err)
		}
		return
	}

	h.Logger.InfoContext(r.Context(), "image deleted",
		"path", imagePath, "user_id", sessionUserID(r), "category", model.EventCategoryUpload)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Image deleted successfully"})
}

// sessionUserID returns the caller's id, or 0 when unauthenticated.
func sessionUserID(r *http.Request) int64 {
	if s := middleware.GetSession(r); s != nil {
		return s.SubjectID
	}
	return 0
}
