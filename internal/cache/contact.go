// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"time"

	"github.com/olegiv/sitecms/internal/model"
)

const contactInfoKey = "contact_info"

// SettingsLoader loads the contact_info rows.
type SettingsLoader interface {
	ListSettings(ctx context.Context) ([]model.Setting, error)
}

// ContactInfo caches the public key/value contact map.
type ContactInfo struct {
	cache  *TypedCache[map[string]string]
	loader SettingsLoader
}

// NewContactInfo creates a contact-info cache backed by c.
func NewContactInfo(c Cacher, loader SettingsLoader, ttl time.Duration) *ContactInfo {
	return &ContactInfo{
		cache:  NewTypedCache[map[string]string](c, ttl),
		loader: loader,
	}
}

// Get returns the cached map, loading it from the store on a miss.
func (c *ContactInfo) Get(ctx context.Context) (map[string]string, error) {
	m, err := c.cache.GetOrLoad(ctx, contactInfoKey, func(ctx context.Context) (*map[string]string, error) {
		settings, err := c.loader.ListSettings(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]string, len(settings))
		for _, s := range settings {
			out[s.Key] = s.Value
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return *m, nil
}

// Invalidate drops the cached map so the next Get reloads it.
func (c *ContactInfo) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, contactInfoKey)
}
