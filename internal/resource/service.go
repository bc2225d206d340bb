// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/util"
	"github.com/olegiv/sitecms/internal/validation"
)

// Bulk request limits.
const (
	MaxBulkItems = 100
	DefaultLimit = 50
	MaxLimit     = 100
	MaxPage      = 100
	MaxSearchLen = 100
)

// Input errors raised before any database access.
var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidIDFormat  = errors.New("invalid id format")
	ErrNoUpdates        = errors.New("no updates provided")
)

// InvalidFieldError reports an update key that is not a writable column.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return "invalid update field: " + e.Field
}

// Service runs the validate, transform, slug and write pipeline on top of a Repository.
type Service struct {
	repo *Repository
	now  func() time.Time
}

// NewService creates a service on db.
func NewService(db *sqlx.DB) *Service {
	return &Service{repo: NewRepository(db), now: time.Now}
}

// Repository exposes the underlying SQL layer for read paths.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Create validates input and inserts a row, returning its id.
func (s *Service) Create(ctx context.Context, cfg *Config, input map[string]any) (int64, error) {
	data, err := cfg.Schema.Validate(input)
	if err != nil {
		return 0, err
	}

	if cfg.Transform != nil {
		cfg.Transform(data, s.now())
	}

	if cfg.SlugField != "" {
		slug, _ := data[cfg.SlugField].(string)
		if slug == "" {
			source, _ := data[cfg.SlugSource].(string)
			slug = util.Slugify(source)
			if slug == "" {
				return 0, validation.Errors{{
					Field:   cfg.SlugField,
					Message: "Could not generate a slug from " + cfg.SlugSource,
				}}
			}
			data[cfg.SlugField] = slug
		}

		taken, err := s.repo.SlugExists(ctx, cfg, slug, 0)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, ErrSlugConflict
		}
	}

	for k, v := range cfg.Defaults {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}

	return s.repo.Insert(ctx, cfg, data)
}

// Update validates the supplied fields and writes them to row id.
// Fields that are absent keep their stored values.
func (s *Service) Update(ctx context.Context, cfg *Config, id int64, input map[string]any) error {
	data, err := cfg.Schema.ValidatePartial(input)
	if err != nil {
		return err
	}

	if cfg.SlugField != "" {
		if slug, ok := data[cfg.SlugField].(string); ok && slug == "" {
			delete(data, cfg.SlugField)
		}
	}
	if len(data) == 0 {
		return ErrNoUpdates
	}

	if cfg.Transform != nil {
		cfg.Transform(data, s.now())
	}

	ok, err := s.repo.Exists(ctx, cfg, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if slug, ok := data[cfg.SlugField].(string); ok && cfg.SlugField != "" {
		taken, err := s.repo.SlugExists(ctx, cfg, slug, id)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlugConflict
		}
	}

	return s.repo.Update(ctx, cfg, id, data)
}

// BulkUpdate applies validated updates to every id.
func (s *Service) BulkUpdate(ctx context.Context, cfg *Config, ids []int64, updates map[string]any) (int64, error) {
	if len(updates) == 0 {
		return 0, ErrNoUpdates
	}
	for k := range updates {
		if !cfg.IsColumn(k) || k == cfg.SlugField {
			return 0, &InvalidFieldError{Field: k}
		}
	}

	data, err := cfg.Schema.ValidatePartial(updates)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, ErrNoUpdates
	}
	if cfg.Transform != nil {
		cfg.Transform(data, s.now())
	}

	return s.repo.BulkUpdate(ctx, cfg, ids, data)
}

// BulkDelete removes every id.
func (s *Service) BulkDelete(ctx context.Context, cfg *Config, ids []int64) (int64, error) {
	return s.repo.BulkDelete(ctx, cfg, ids)
}

// Reorder updates order_index for resources that are ordered by it.
func (s *Service) Reorder(ctx context.Context, cfg *Config, items []OrderItem) (int64, error) {
	if !cfg.IsColumn("order_index") {
		return 0, &InvalidFieldError{Field: "order_index"}
	}
	if len(items) == 0 || len(items) > MaxBulkItems {
		return 0, ErrInvalidSelection
	}
	for _, it := range items {
		if it.ID <= 0 {
			return 0, ErrInvalidIDFormat
		}
		if it.OrderIndex < 0 || it.OrderIndex > 9999 {
			return 0, validation.Errors{{Field: "order_index", Message: "Order index must be between 0 and 9999"}}
		}
	}
	return s.repo.Reorder(ctx, cfg, items)
}

// ParseIDs checks a decoded JSON ids array: 1..MaxBulkItems entries,
// each a positive integer.
func ParseIDs(raw any) ([]int64, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 || len(list) > MaxBulkItems {
		return nil, ErrInvalidSelection
	}

	ids := make([]int64, len(list))
	for i, v := range list {
		f, ok := v.(float64)
		if !ok || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
			return nil, ErrInvalidIDFormat
		}
		ids[i] = int64(f)
	}
	return ids, nil
}

// ClampPage bounds page to 1..MaxPage and limit to 1..MaxLimit.
func ClampPage(page, limit int) (int, int) {
	return min(max(page, 1), MaxPage), min(max(limit, 1), MaxLimit)
}

// TrimSearch cuts a search term to MaxSearchLen runes.
func TrimSearch(s string) string {
	r := []rune(s)
	if len(r) > MaxSearchLen {
		return string(r[:MaxSearchLen])
	}
	return s
}
