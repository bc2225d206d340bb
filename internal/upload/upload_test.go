// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/sitecms/internal/imaging"
	"github.com/olegiv/sitecms/internal/testutil"
)

var uploadURLPattern = regexp.MustCompile(`^/uploads/images/\d{4}-\d{2}/[a-zA-Z0-9_-]+\.(jpg|jpeg|png|webp|gif)$`)

func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(width, height)))
	return buf.Bytes()
}

func gifBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(width, height), nil))
	return buf.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), imaging.NewProcessor(50, 50, 80), testutil.TestLoggerSilent())
	s.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }
	return s
}

func TestSave_PNG(t *testing.T) {
	s := newTestStore(t)
	data := pngBytes(t, 120, 60)

	res, err := s.Save(context.Background(), "My Photo (1).PNG", imaging.MimeTypePNG, bytes.NewReader(data))
	require.NoError(t, err)

	assert.Regexp(t, uploadURLPattern, res.URL)
	assert.Equal(t, "2026-05", res.Path)
	assert.Equal(t, "My_Photo__1_.PNG", res.OriginalName)
	assert.Equal(t, int64(len(data)), res.Size)
	assert.Equal(t, 120, res.Width)
	assert.Equal(t, 60, res.Height)
	assert.True(t, strings.HasPrefix(res.UniqueName, "1778051289000_"), res.UniqueName)
	assert.True(t, strings.HasSuffix(res.UniqueName, ".png"))

	stored, err := os.ReadFile(filepath.Join(s.Dir(), "images", "2026-05", res.UniqueName))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	require.NotEmpty(t, res.ThumbnailURL)
	assert.Regexp(t, uploadURLPattern, res.ThumbnailURL)
	thumb, err := os.ReadFile(filepath.Join(s.Dir(), "images", "2026-05", ThumbPrefix+res.UniqueName))
	require.NoError(t, err)
	info, err := imaging.NewProcessor(50, 50, 80).Inspect(thumb)
	require.NoError(t, err)
	assert.Equal(t, 50, info.Width)
	assert.Equal(t, 25, info.Height)
}

func TestSave_GIFHasNoThumbnail(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Save(context.Background(), "anim.gif", imaging.MimeTypeGIF, bytes.NewReader(gifBytes(t, 30, 30)))
	require.NoError(t, err)
	assert.Empty(t, res.ThumbnailURL)
}

func TestSave_Rejects(t *testing.T) {
	valid := pngBytes(t, 20, 20)

	tests := []struct {
		name     string
		filename string
		mimeType string
		data     []byte
		want     error
	}{
		{"type not allowed", "a.png", "image/svg+xml", valid, ErrInvalidType},
		{"empty filename", "", "image/png", valid, ErrInvalidName},
		{"long filename", strings.Repeat("a", 252) + ".png", "image/png", valid, ErrInvalidName},
		{"too small", "a.png", "image/png", valid[:50], ErrTooSmall},
		{"too large", "a.png", "image/png", append(append([]byte{}, valid...), make([]byte, MaxSize)...), ErrTooLarge},
		{"signature mismatch", "a.jpg", "image/jpeg", valid, ErrSignature},
		{"bad extension", "a.exe", "image/png", valid, ErrInvalidExtension},
		{"extension names another type", "x.gif", "image/png", valid, ErrInvalidExtension},
		{"jpeg extension on png", "x.jpeg", "image/png", valid, ErrInvalidExtension},
		{"corrupt body", "a.png", "image/png", append([]byte{0x89, 0x50, 0x4e, 0x47}, make([]byte, 200)...), ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.Save(context.Background(), tt.filename, tt.mimeType, bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, tt.want)

			entries, _ := os.ReadDir(filepath.Join(s.Dir(), "images"))
			assert.Empty(t, entries, "nothing should be written on rejection")
		})
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)

	images, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, images)

	first, err := s.Save(context.Background(), "a.png", imaging.MimeTypePNG, bytes.NewReader(pngBytes(t, 20, 20)))
	require.NoError(t, err)
	second, err := s.Save(context.Background(), "b.gif", imaging.MimeTypeGIF, bytes.NewReader(gifBytes(t, 20, 20)))
	require.NoError(t, err)

	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), "images", first.Path, first.UniqueName), older, older))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "images", "readme.txt"), []byte("x"), 0o644))

	images, err = s.List()
	require.NoError(t, err)
	require.Len(t, images, 2, "thumbnails and non-images are excluded")
	assert.Equal(t, second.URL, images[0].URL)
	assert.Equal(t, first.URL, images[1].URL)
	assert.Equal(t, imaging.MimeTypePNG, images[1].Type)
	assert.Equal(t, "2026-05", images[1].Path)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Save(context.Background(), "a.png", imaging.MimeTypePNG, bytes.NewReader(pngBytes(t, 80, 80)))
	require.NoError(t, err)

	require.NoError(t, s.Delete(res.URL))
	_, err = os.Stat(filepath.Join(s.Dir(), "images", res.Path, res.UniqueName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.Dir(), "images", res.Path, ThumbPrefix+res.UniqueName))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, s.Delete(res.URL), ErrNotFound)
	assert.ErrorIs(t, s.Delete("/uploads/images/../../etc/passwd"), ErrInvalidPath)
	assert.ErrorIs(t, s.Delete("/etc/passwd"), ErrInvalidPath)
	assert.ErrorIs(t, s.Delete("/uploads/images/2026-05"), ErrInvalidPath)
}

func TestTotalSize(t *testing.T) {
	s := newTestStore(t)

	size, err := s.TotalSize()
	require.NoError(t, err)
	assert.Zero(t, size)

	data := gifBytes(t, 20, 20)
	_, err = s.Save(context.Background(), "a.gif", imaging.MimeTypeGIF, bytes.NewReader(data))
	require.NoError(t, err)

	size, err = s.TotalSize()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}
