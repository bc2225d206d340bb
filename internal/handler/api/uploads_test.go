// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/olegiv/sitecms/internal/csrf"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, e *testEnv, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(csrf.HeaderName, e.csrf)
	req.AddCookie(e.cookie)
	return req
}

func TestUpload_StoresImage(t *testing.T) {
	e := newTestEnv(t)

	w := e.serve(uploadRequest(t, e, "photo.png", "image/png", testPNG(t, 120, 60)))
	assertStatus(t, w, http.StatusOK)

	resp := decodeJSON(t, w)
	url, _ := resp["url"].(string)
	if !strings.HasPrefix(url, "/uploads/images/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("url = %q", url)
	}
	if resp["width"] != float64(120) || resp["height"] != float64(60) {
		t.Errorf("dimensions = %vx%v, want 120x60", resp["width"], resp["height"])
	}
	if resp["originalName"] != "photo.png" {
		t.Errorf("originalName = %v", resp["originalName"])
	}

	w = e.do(t, http.MethodGet, "/api/admin/images", nil, true)
	assertStatus(t, w, http.StatusOK)
	images, _ := decodeJSON(t, w)["images"].([]any)
	if len(images) != 1 {
		t.Fatalf("len(images) = %d, want 1", len(images))
	}

	w = e.do(t, http.MethodDelete, "/api/admin/images", e.withToken(map[string]any{"imagePath": url}), true)
	assertStatus(t, w, http.StatusOK)

	w = e.do(t, http.MethodDelete, "/api/admin/images", e.withToken(map[string]any{"imagePath": url}), true)
	assertError(t, w, http.StatusNotFound, "Image not found")
}

func TestUpload_Rejects(t *testing.T) {
	e := newTestEnv(t)
	valid := testPNG(t, 40, 40)

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		message     string
	}{
		{"type", "doc.pdf", "application/pdf", valid, "Invalid file type. Only JPEG, PNG, WebP, and GIF images are allowed."},
		{"too small", "tiny.png", "image/png", valid[:50], "File too small. Minimum size is 100 bytes."},
		{"signature", "fake.png", "image/png", bytes.Repeat([]byte("A"), 200), "File content doesn't match declared type"},
		{"extension", "photo.exe", "image/png", valid, "Invalid file extension"},
		{"extension type mismatch", "x.gif", "image/png", valid, "Invalid file extension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.serve(uploadRequest(t, e, tt.filename, tt.contentType, tt.data))
			assertError(t, w, http.StatusBadRequest, tt.message)
		})
	}
}

func TestUpload_RequiresSessionAndCSRF(t *testing.T) {
	e := newTestEnv(t)

	req := uploadRequest(t, e, "photo.png", "image/png", testPNG(t, 40, 40))
	req.Header.Del("Cookie")
	assertError(t, e.serve(req), http.StatusUnauthorized, "Unauthorized")

	req = uploadRequest(t, e, "photo.png", "image/png", testPNG(t, 40, 40))
	req.Header.Del(csrf.HeaderName)
	assertError(t, e.serve(req), http.StatusForbidden, "Missing CSRF token")
}

func TestUpload_NoFile(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(""))
	req.Header.Set(csrf.HeaderName, e.csrf)
	req.AddCookie(e.cookie)
	assertError(t, e.serve(req), http.StatusBadRequest, "No file provided")
}

func TestDeleteImage_InvalidPath(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodDelete, "/api/admin/images", e.withToken(map[string]any{"imagePath": "/uploads/images/../../app.db"}), true)
	assertError(t, w, http.StatusBadRequest, "Invalid image path")
}
