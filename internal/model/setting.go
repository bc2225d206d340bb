// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Setting is a contact_info row: a site-wide key/value pair shown on public pages.
type Setting struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	Label     string    `db:"label"`
	Type      string    `db:"type"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SettingView is the JSON shape of a setting in the admin settings map.
type SettingView struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Type  string `json:"type"`
}
