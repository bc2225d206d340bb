// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"context"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/store"
	"github.com/olegiv/sitecms/internal/validation"
)

// DefaultCategoryColor is applied when a category is created without a color.
const DefaultCategoryColor = "#6366f1"

var (
	tagsPattern     = regexp.MustCompile(`^[a-zA-Z0-9\s,.-]*$`)
	categoryPattern = regexp.MustCompile(`^[a-zA-Z0-9\s-]*$`)
	labelPattern    = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.]*$`)
	personPattern   = regexp.MustCompile(`^[a-zA-Z\s\-'.]*$`)
	companyPattern  = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.&]*$`)
)

func slugField(maxLen int) validation.Field {
	return validation.Field{Name: "slug", Kind: validation.String, MaxLen: maxLen, Trim: true, Check: validation.CheckSlug}
}

// Posts is the blog post resource.
func Posts() *Config {
	return &Config{
		Name:     "posts",
		Singular: "post",
		Table:    "posts",
		Schema: validation.NewSchema(
			validation.Field{Name: "title", Kind: validation.String, Required: true, MinLen: 1, MaxLen: 200, Trim: true, Safe: true},
			slugField(200),
			validation.Field{Name: "excerpt", Kind: validation.String, MaxLen: 500, Safe: true},
			validation.Field{Name: "content", Kind: validation.String, Required: true, MinLen: 1, MaxLen: 50000, Safe: true},
			validation.Field{Name: "tags", Kind: validation.String, MaxLen: 200, Pattern: tagsPattern},
			validation.Field{Name: "category", Kind: validation.String, MaxLen: 100, Pattern: categoryPattern},
			validation.Field{Name: "featured_image", Label: "featured image", Kind: validation.String, MaxLen: 500, Check: validation.CheckImageRef},
			validation.Field{Name: "published", Kind: validation.Bool},
		),
		SlugField:    "slug",
		SlugSource:   "title",
		SearchColumn: "title",
		PublicFilter: "published = 1",
		Defaults:     map[string]any{"published": 0, "published_at": nil},
		Transform: func(data map[string]any, now time.Time) {
			if v, ok := data["published"].(bool); ok {
				data["published"] = boolInt(v)
				if v {
					data["published_at"] = store.Timestamp(now)
				} else {
					data["published_at"] = nil
				}
			}
		},
	}
}

// Services is the services resource, ordered by order_index.
func Services() *Config {
	return &Config{
		Name:     "services",
		Singular: "service",
		Table:    "services",
		Schema: validation.NewSchema(
			validation.Field{Name: "title", Kind: validation.String, Required: true, MinLen: 1, MaxLen: 200, Trim: true, Safe: true},
			slugField(200),
			validation.Field{Name: "description", Kind: validation.String, Required: true, MinLen: 1, MaxLen: 500, Safe: true},
			validation.Field{Name: "content", Kind: validation.String, MaxLen: 50000, Safe: true},
			validation.Field{Name: "icon", Kind: validation.String, MaxLen: 100, Pattern: labelPattern},
			validation.Field{Name: "order_index", Label: "order index", Kind: validation.Int, Min: 0, Max: 9999},
			validation.Field{Name: "active", Kind: validation.Bool},
		),
		SlugField:    "slug",
		SlugSource:   "title",
		SearchColumn: "title",
		HasActive:    true,
		OrderBy:      "order_index ASC, created_at DESC",
		PublicFilter: "active = 1",
		Defaults:     map[string]any{"active": 1, "order_index": 0},
		Transform: func(data map[string]any, _ time.Time) {
			boolColumns(data, "active")
		},
	}
}

// Categories is the post category resource.
func Categories() *Config {
	return &Config{
		Name:     "categories",
		Singular: "category",
		Table:    "categories",
		Schema: validation.NewSchema(
			validation.Field{Name: "name", Kind: validation.String, Required: true, MinLen: 1, MaxLen: 100, Trim: true, Pattern: labelPattern},
			slugField(100),
			validation.Field{Name: "description", Kind: validation.String, MaxLen: 500, Safe: true},
			validation.Field{Name: "color", Kind: validation.String, MaxLen: 7, Check: validation.CheckColor},
		),
		SlugField:    "slug",
		SlugSource:   "name",
		SearchColumn: "name",
		Defaults:     map[string]any{"color": DefaultCategoryColor},
		Transform: func(data map[string]any, _ time.Time) {
			if c, ok := data["color"].(string); ok && c == "" {
				data["color"] = DefaultCategoryColor
			}
		},
		InUse: func(ctx context.Context, db sqlx.QueryerContext, id int64) (bool, error) {
			var n int64
			err := sqlx.GetContext(ctx, db, &n,
				`SELECT COUNT(*) FROM posts WHERE category = (SELECT slug FROM categories WHERE id = ?)`, id)
			return n > 0, err
		},
		InUseMessage: "Cannot delete category that is being used by posts",
	}
}

// Testimonials is the customer testimonial resource.
func Testimonials() *Config {
	return &Config{
		Name:     "testimonials",
		Singular: "testimonial",
		Table:    "testimonials",
		Schema: validation.NewSchema(
			validation.Field{Name: "name", Kind: validation.String, Required: true, MinLen: 1, MaxLen: 100, Trim: true, Pattern: personPattern},
			validation.Field{Name: "title", Kind: validation.String, MaxLen: 100, Trim: true, Pattern: companyPattern},
			validation.Field{Name: "company", Kind: validation.String, MaxLen: 100, Trim: true, Pattern: companyPattern},
			validation.Field{Name: "content", Kind: validation.String, Required: true, MinLen: 1, MaxLen: 1000, Safe: true},
			validation.Field{Name: "rating", Kind: validation.Int, Min: 1, Max: 5},
			validation.Field{Name: "featured", Kind: validation.Bool},
			validation.Field{Name: "active", Kind: validation.Bool},
		),
		SearchColumn: "name",
		HasActive:    true,
		PublicFilter: "active = 1",
		Defaults:     map[string]any{"active": 1, "featured": 0, "rating": 5},
		Transform: func(data map[string]any, _ time.Time) {
			boolColumns(data, "active", "featured")
		},
	}
}

// Builtin returns a registry with every content resource.
func Builtin() *Registry {
	r, err := NewRegistry(Posts(), Services(), Categories(), Testimonials())
	if err != nil {
		panic(err)
	}
	return r
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolColumns(data map[string]any, names ...string) {
	for _, name := range names {
		if v, ok := data[name].(bool); ok {
			data[name] = boolInt(v)
		}
	}
}
