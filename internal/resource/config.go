// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package resource implements generic list/get/create/update/delete and bulk
// operations for content tables described by a Config.
package resource

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/validation"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TransformFunc converts validated input into column values in place.
// It only touches keys present in data.
type TransformFunc func(data map[string]any, now time.Time)

// InUseFunc reports whether the row with id is still referenced elsewhere.
type InUseFunc func(ctx context.Context, db sqlx.QueryerContext, id int64) (bool, error)

// Config describes one content table.
type Config struct {
	Name     string // URL segment, e.g. "posts"
	Singular string // used in messages, e.g. "post"
	Table    string
	Schema   *validation.Schema

	SlugField  string // empty disables slug handling
	SlugSource string // field the slug is generated from

	SearchColumn string
	HasActive    bool   // supports the status filter
	OrderBy      string // ORDER BY clause, defaults to "created_at DESC"
	PublicFilter string // WHERE fragment applied for unauthenticated callers

	Defaults  map[string]any
	Transform TransformFunc

	// InUse blocks deletion when it reports true.
	InUse        InUseFunc
	InUseMessage string
}

// Columns returns the writable columns, i.e. the fields declared by the schema.
func (c *Config) Columns() []string {
	return c.Schema.Fields()
}

// IsColumn reports whether name is a writable column.
func (c *Config) IsColumn(name string) bool {
	return c.Schema.Has(name)
}

func (c *Config) orderBy() string {
	if c.OrderBy != "" {
		return c.OrderBy
	}
	return "created_at DESC"
}

// Validate checks that every identifier interpolated into SQL is safe.
func (c *Config) Validate() error {
	if c.Name == "" || c.Singular == "" {
		return fmt.Errorf("resource %q: name and singular are required", c.Table)
	}
	if !identPattern.MatchString(c.Table) {
		return fmt.Errorf("resource %q: invalid table name %q", c.Name, c.Table)
	}
	if c.Schema == nil {
		return fmt.Errorf("resource %q: schema is required", c.Name)
	}

	idents := slices.Clone(c.Columns())
	for _, name := range []string{c.SlugField, c.SlugSource, c.SearchColumn} {
		if name != "" {
			idents = append(idents, name)
		}
	}
	for k := range c.Defaults {
		idents = append(idents, k)
	}
	for _, name := range idents {
		if !identPattern.MatchString(name) {
			return fmt.Errorf("resource %q: invalid column name %q", c.Name, name)
		}
	}

	if c.SlugField != "" && c.SlugSource == "" {
		return fmt.Errorf("resource %q: slug field requires a slug source", c.Name)
	}
	return nil
}

// Registry maps URL names to resource configurations.
type Registry struct {
	byName map[string]*Config
	order  []string
}

// NewRegistry validates and registers configs.
func NewRegistry(configs ...*Config) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Config, len(configs))}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("resource %q registered twice", c.Name)
		}
		r.byName[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	return r, nil
}

// Get returns the config registered under name.
func (r *Registry) Get(name string) (*Config, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}
