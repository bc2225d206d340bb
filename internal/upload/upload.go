// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package upload validates and stores uploaded images under the public
// uploads directory.
package upload

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/sitecms/internal/imaging"
	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/util"
)

// Size limits for uploaded files.
const (
	MaxSize         = 10 << 20
	MinSize         = 100
	MaxFilenameLen  = 255
	maxNameAttempts = 10

	// URLPrefix is the public URL prefix of stored images.
	URLPrefix = "/uploads/images/"
	// ThumbPrefix marks generated thumbnails.
	ThumbPrefix = "thumb_"
)

// Errors returned by Store.
var (
	ErrInvalidType      = errors.New("invalid file type")
	ErrTooLarge         = errors.New("file too large")
	ErrTooSmall         = errors.New("file too small")
	ErrInvalidName      = errors.New("invalid filename")
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrSignature        = errors.New("file content does not match declared type")
	ErrCorrupt          = errors.New("image cannot be decoded")
	ErrNameExhausted    = errors.New("unable to generate unique filename")
	ErrInvalidPath      = errors.New("invalid image path")
	ErrNotFound         = errors.New("image not found")
)

// signatures are the leading magic bytes of each allowed type.
var signatures = map[string][]byte{
	imaging.MimeTypeJPEG: {0xff, 0xd8, 0xff},
	imaging.MimeTypePNG:  {0x89, 0x50, 0x4e, 0x47},
	imaging.MimeTypeGIF:  {0x47, 0x49, 0x46},
	imaging.MimeTypeWebP: {0x52, 0x49, 0x46, 0x46},
}

var extensionTypes = map[string]string{
	".jpg":  imaging.MimeTypeJPEG,
	".jpeg": imaging.MimeTypeJPEG,
	".png":  imaging.MimeTypePNG,
	".gif":  imaging.MimeTypeGIF,
	".webp": imaging.MimeTypeWebP,
}

// Result describes a stored upload.
type Result struct {
	URL          string    `json:"url"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	UniqueName   string    `json:"uniqueName"`
	Size         int64     `json:"size"`
	Type         string    `json:"type"`
	Path         string    `json:"path"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Image is an entry of the image library.
type Image struct {
	Name         string    `json:"name"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Created      time.Time `json:"created"`
	Path         string    `json:"path"`
	URL          string    `json:"url"`
	Type         string    `json:"type"`
}

// Store writes images to <dir>/images/<yyyy-mm>/.
type Store struct {
	dir    string
	proc   *imaging.Processor
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store rooted at the uploads directory.
func NewStore(dir string, proc *imaging.Processor, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		proc:   proc,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the uploads root.
func (s *Store) Dir() string {
	return s.dir
}

// IsAllowedType reports whether mimeType may be uploaded.
func IsAllowedType(mimeType string) bool {
	_, ok := signatures[mimeType]
	return ok
}

// Save validates the upload and stores it. declaredType is the client's
// Content-Type for the part.
func (s *Store) Save(ctx context.Context, filename, declaredType string, r io.Reader) (*Result, error) {
	if !IsAllowedType(declaredType) {
		return nil, ErrInvalidType
	}
	if filename == "" || len(filename) > MaxFilenameLen {
		return nil, ErrInvalidName
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	switch {
	case len(data) > MaxSize:
		return nil, ErrTooLarge
	case len(data) < MinSize:
		return nil, ErrTooSmall
	}

	if !bytes.HasPrefix(data, signatures[declaredType]) {
		return nil, ErrSignature
	}

	original := util.SanitizeUploadName(filename)
	ext := strings.ToLower(filepath.Ext(original))
	// The stored name keeps this extension, so it must name the same type
	// the content was checked against.
	if extensionTypes[ext] != declaredType {
		return nil, ErrInvalidExtension
	}

	info, err := s.proc.Inspect(data)
	if err != nil {
		return nil, ErrCorrupt
	}
	if info.MimeType != declaredType {
		return nil, ErrSignature
	}

	now := s.now().UTC()
	month := now.Format("2006-01")
	monthDir, err := util.SafeJoinPath(s.dir, "images", month)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(monthDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}

	unique, err := uniqueName(monthDir, now, ext)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(filepath.Join(monthDir, unique), data); err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	res := &Result{
		URL:          URLPrefix + month + "/" + unique,
		Filename:     original,
		OriginalName: original,
		UniqueName:   unique,
		Size:         int64(len(data)),
		Type:         declaredType,
		Path:         month,
		Width:        info.Width,
		Height:       info.Height,
		UploadedAt:   now,
	}

	if s.proc.CanThumbnail(info.MimeType) {
		if thumb, err := s.proc.Thumbnail(data); err != nil {
			s.logger.WarnContext(ctx, "thumbnail generation failed", "file", unique, "error", err, "category", model.EventCategoryUpload)
		} else if err := writeAtomic(filepath.Join(monthDir, ThumbPrefix+unique), thumb); err != nil {
			s.logger.WarnContext(ctx, "thumbnail write failed", "file", unique, "error", err, "category", model.EventCategoryUpload)
		} else {
			res.ThumbnailURL = URLPrefix + month + "/" + ThumbPrefix + unique
		}
	}

	return res, nil
}

// List returns every stored image except thumbnails, newest first.
func (s *Store) List() ([]Image, error) {
	root := filepath.Join(s.dir, "images")
	images := []Image{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ThumbPrefix) {
			return nil
		}
		mimeType, ok := extensionTypes[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}

		url := URLPrefix + d.Name()
		if rel != "" {
			url = URLPrefix + rel + "/" + d.Name()
		}
		images = append(images, Image{
			Name:         d.Name(),
			OriginalName: d.Name(),
			Size:         info.Size(),
			Created:      info.ModTime().UTC(),
			Path:         rel,
			URL:          url,
			Type:         mimeType,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Created.After(images[j].Created)
	})
	return images, nil
}

// Delete removes the image at a public /uploads/images/... path together
// with its thumbnail.
func (s *Store) Delete(imagePath string) error {
	if !strings.HasPrefix(imagePath, URLPrefix) || strings.Contains(imagePath, "..") {
		return ErrInvalidPath
	}

	rel := strings.TrimPrefix(imagePath, "/uploads/")
	full, err := util.SafeJoinPath(s.dir, filepath.FromSlash(rel))
	if err != nil {
		return ErrInvalidPath
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return ErrInvalidPath
	}

	if err := os.Remove(full); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	thumb := filepath.Join(filepath.Dir(full), ThumbPrefix+filepath.Base(full))
	if err := os.Remove(thumb); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("thumbnail delete failed", "file", thumb, "error", err, "category", model.EventCategoryUpload)
	}
	return nil
}

// TotalSize returns the summed size of all files under the uploads root.
func (s *Store) TotalSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, err
}

// uniqueName returns <unixms>_<16 hex chars><ext> not yet present in dir.
func uniqueName(dir string, now time.Time, ext string) (string, error) {
	for range maxNameAttempts {
		id := uuid.New()
		name := fmt.Sprintf("%d_%s%s", now.UnixMilli(), hex.EncodeToString(id[:8]), ext)
		if _, err := os.Stat(filepath.Join(dir, name)); errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
	}
	return "", ErrNameExhausted
}

func writeAtomic(path string, data []byte) (err error) {
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
